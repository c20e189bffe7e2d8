package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_NoHandlers(t *testing.T) {
	c := NewCenter()
	out, err := c.Trigger(context.Background(), MatchReported, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestTrigger_PriorityOrderAndDataFlow(t *testing.T) {
	c := NewCenter()
	c.Register("ev", 10, "addTen", func(_ context.Context, _ string, d any) (any, error) {
		return d.(int) + 10, nil
	})
	c.Register("ev", 1, "double", func(_ context.Context, event string, d any) (any, error) {
		assert.Equal(t, "ev", event)
		return d.(int) * 2, nil
	})
	out, err := c.Trigger(context.Background(), "ev", 5)
	require.NoError(t, err)
	assert.Equal(t, 20, out)
}

func TestTrigger_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	c := NewCenter()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		c.Register("ev", 0, name, func(_ context.Context, _ string, d any) (any, error) {
			order = append(order, name)
			return d, nil
		})
	}
	_, err := c.Trigger(context.Background(), "ev", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTrigger_Interrupt(t *testing.T) {
	c := NewCenter()
	var second bool
	c.Register("ev", 0, "stopper", func(_ context.Context, _ string, d any) (any, error) {
		return d, ErrInterrupt
	})
	c.Register("ev", 1, "after", func(_ context.Context, _ string, d any) (any, error) {
		second = true
		return d, nil
	})
	_, err := c.Trigger(context.Background(), "ev", nil)
	assert.ErrorIs(t, err, ErrInterrupt)
	assert.False(t, second)
}

func TestTrigger_ErrorsAreJoinedAndChainContinues(t *testing.T) {
	c := NewCenter()
	boom := errors.New("boom")
	var second bool
	c.Register("ev", 0, "fails", func(_ context.Context, _ string, d any) (any, error) {
		return nil, boom
	})
	c.Register("ev", 1, "second", func(_ context.Context, _ string, d any) (any, error) {
		second = true
		assert.Equal(t, "in", d)
		return d, nil
	})
	out, err := c.Trigger(context.Background(), "ev", "in")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "in", out)
	assert.True(t, second)
}

func TestUnregister_OnlyNamed(t *testing.T) {
	c := NewCenter()
	var c1, c2 bool
	c.Register("ev", 0, "h1", func(_ context.Context, _ string, d any) (any, error) { c1 = true; return d, nil })
	c.Register("ev", 1, "h2", func(_ context.Context, _ string, d any) (any, error) { c2 = true; return d, nil })
	c.Unregister("ev", "h1")
	_, _ = c.Trigger(context.Background(), "ev", nil)
	assert.False(t, c1)
	assert.True(t, c2)
}
