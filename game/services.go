// Package game assembles the process-wide domain services shared by every
// connection.
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kasuganosora/gamecaps/cache"
	"github.com/kasuganosora/gamecaps/game/chat"
	"github.com/kasuganosora/gamecaps/game/hook"
	"github.com/kasuganosora/gamecaps/game/inventory"
	"github.com/kasuganosora/gamecaps/game/matchmaking"
	"github.com/kasuganosora/gamecaps/game/world"
	"go.uber.org/zap"
)

// ResultTTL bounds how long a reported match result stays cached.
const ResultTTL = 24 * time.Hour

// ResultKey is the cache key of the result reported for a match.
func ResultKey(matchID uint64) string {
	return "match:result:" + strconv.FormatUint(matchID, 10)
}

// Services holds one instance of each domain service.
type Services struct {
	World       *world.World
	Chat        *chat.Service
	Inventory   *inventory.Service
	Matchmaking *matchmaking.Service
	Feed        *chat.CacheFeed
	Hooks       *hook.Center
}

// NewServices builds the domain services. Chat traffic is mirrored into c
// and ps; reported match results are cached in c by the "result_cache" hook.
func NewServices(c cache.Cache, ps cache.PubSub, logger *zap.Logger) *Services {
	hooks := hook.NewCenter()
	hooks.Register(hook.MatchReported, 0, "result_cache", func(ctx context.Context, _ string, data any) (any, error) {
		r := data.(matchmaking.MatchResult)
		raw, err := json.Marshal(r)
		if err != nil {
			return data, err
		}
		if err := c.Set(ctx, ResultKey(r.MatchID), string(raw), ResultTTL); err != nil {
			return data, fmt.Errorf("cache result of match %d: %w", r.MatchID, err)
		}
		return data, nil
	})

	feed := chat.NewCacheFeed(c, ps, logger.Named("chat.feed"))
	mm := matchmaking.NewService(logger.Named("matchmaking"))
	mm.OnReport(func(r matchmaking.MatchResult) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := hooks.Trigger(ctx, hook.MatchReported, r); err != nil {
			logger.Warn("match reported hook failed", zap.Uint64("match_id", r.MatchID), zap.Error(err))
		}
	})
	return &Services{
		World:       world.New(logger.Named("world")),
		Chat:        chat.NewService(feed, logger.Named("chat")),
		Inventory:   inventory.NewService(logger.Named("inventory")),
		Matchmaking: mm,
		Feed:        feed,
		Hooks:       hooks,
	}
}
