package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerInfo_JSON(t *testing.T) {
	p := PlayerInfo{ID: 7, Name: "Aria", Faction: FactionHorde, Level: 12}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"name":"Aria","faction":"horde","level":12}`, string(b))

	var back PlayerInfo
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p, back)
}

func TestGameMode_UnknownRejected(t *testing.T) {
	var m GameMode
	err := json.Unmarshal([]byte(`"ranked"`), &m)
	assert.Error(t, err)
}

func TestEnum_OutOfRange(t *testing.T) {
	_, err := Faction(42).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "unknown(42)", Faction(42).String())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusNotFound, StatusOf(fmt.Errorf("room %q: %w", "x", ErrNotFound)))
	assert.Equal(t, StatusInvalidArgument, StatusOf(fmt.Errorf("confirm: %w", ErrInvalidState)))
	assert.Equal(t, "invalidArgument", StatusInvalidArgument.String())
}
