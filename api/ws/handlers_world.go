package ws

import (
	"context"

	"github.com/kasuganosora/gamecaps/game/types"
	"github.com/kasuganosora/gamecaps/game/world"
	"github.com/kasuganosora/gamecaps/rpc"
)

type entityID struct {
	ID uint64 `json:"id"`
}

type entityReply struct {
	reply
	Entity *world.Entity `json:"entity,omitempty"`
}

func entityResult(e world.Entity, err error) entityReply {
	if err != nil {
		return entityReply{reply: replyOf(err)}
	}
	return entityReply{reply: okReply, Entity: &e}
}

func newGameWorld(w *world.World) *rpc.Interface {
	return rpc.NewInterface("GameWorld").
		On("spawnEntity", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Kind      world.Kind    `json:"kind"`
				Name      string        `json:"name"`
				Position  types.Vec3    `json:"position"`
				Faction   types.Faction `json:"faction"`
				MaxHealth int32         `json:"maxHealth"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return entityResult(w.Spawn(p.Kind, p.Name, p.Position, p.Faction, p.MaxHealth), nil), nil
		}).
		On("despawnEntity", func(_ context.Context, call *rpc.Call) (any, error) {
			var p entityID
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return replyOf(w.Despawn(p.ID)), nil
		}).
		On("getEntity", func(_ context.Context, call *rpc.Call) (any, error) {
			var p entityID
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return entityResult(w.Get(p.ID)), nil
		}).
		On("moveEntity", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				ID       uint64     `json:"id"`
				Position types.Vec3 `json:"position"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return entityResult(w.Move(p.ID, p.Position)), nil
		}).
		On("damageEntity", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				ID     uint64 `json:"id"`
				Amount int32  `json:"amount"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			e, killed, err := w.Damage(p.ID, p.Amount)
			return struct {
				entityReply
				Killed bool `json:"killed"`
			}{entityResult(e, err), killed}, nil
		}).
		On("queryArea", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Center types.Vec3   `json:"center"`
				Radius float32      `json:"radius"`
				Filter world.Filter `json:"filter"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			found := w.QueryArea(p.Center, p.Radius, p.Filter)
			return struct {
				reply
				Entities []world.Entity `json:"entities"`
				Count    uint32         `json:"count"`
			}{okReply, found, uint32(len(found))}, nil
		})
}
