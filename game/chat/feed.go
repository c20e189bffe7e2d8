package chat

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/gamecaps/cache"
	"go.uber.org/zap"
)

// HistoryLen caps the cached per-room history kept for feed subscribers.
const HistoryLen = 200

// Channel returns the pub/sub channel carrying live messages for room.
func Channel(room string) string { return "chat:room:" + room }

func historyKey(room string) string { return "chat:history:" + room }

// CacheFeed mirrors room traffic into the cache: a capped list per room for
// late subscribers and a pub/sub channel for live ones.
type CacheFeed struct {
	cache  cache.Cache
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewCacheFeed creates a CacheFeed.
func NewCacheFeed(c cache.Cache, ps cache.PubSub, logger *zap.Logger) *CacheFeed {
	return &CacheFeed{cache: c, pubsub: ps, logger: logger}
}

// Publish implements Feed. Failures are logged; they never fail the send.
func (f *CacheFeed) Publish(ctx context.Context, room string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		f.logger.Warn("chat feed marshal failed", zap.Error(err))
		return
	}
	if err := f.cache.LPush(ctx, historyKey(room), string(payload)); err != nil {
		f.logger.Warn("chat feed history push failed", zap.String("room", room), zap.Error(err))
	} else {
		_ = f.cache.LTrim(ctx, historyKey(room), 0, HistoryLen-1)
	}
	if err := f.pubsub.Publish(ctx, Channel(room), string(payload)); err != nil {
		f.logger.Warn("chat feed publish failed", zap.String("room", room), zap.Error(err))
	}
}

// Recent returns up to count cached messages for room, oldest first.
func (f *CacheFeed) Recent(ctx context.Context, room string, count int64) ([]string, error) {
	msgs, err := f.cache.LRange(ctx, historyKey(room), 0, count-1)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Subscribe streams live messages for room until cancel is called.
func (f *CacheFeed) Subscribe(ctx context.Context, room string) (<-chan *cache.Message, func(), error) {
	return f.pubsub.Subscribe(ctx, Channel(room))
}
