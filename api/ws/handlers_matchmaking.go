package ws

import (
	"context"

	"github.com/kasuganosora/gamecaps/game/matchmaking"
	"github.com/kasuganosora/gamecaps/game/types"
	"github.com/kasuganosora/gamecaps/rpc"
)

type queueParams struct {
	Player types.PlayerInfo `json:"player"`
	Mode   types.GameMode   `json:"mode"`
}

type matchStateReply struct {
	reply
	State matchmaking.MatchState `json:"state"`
}

func newMatchmakingService(svc *matchmaking.Service) *rpc.Interface {
	return rpc.NewInterface("MatchmakingService").
		On("enqueue", func(_ context.Context, call *rpc.Call) (any, error) {
			var p queueParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				Ticket matchmaking.Ticket `json:"ticket"`
			}{okReply, svc.Enqueue(p.Player, p.Mode)}, nil
		}).
		On("dequeue", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				TicketID uint64 `json:"ticketId"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return replyOf(svc.Dequeue(p.TicketID)), nil
		}).
		On("getQueueStats", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Mode types.GameMode `json:"mode"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				matchmaking.QueueStats
			}{okReply, svc.QueueStats(p.Mode)}, nil
		}).
		On("findMatch", func(_ context.Context, call *rpc.Call) (any, error) {
			var p queueParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			m := svc.FindMatch(p.Player, p.Mode)
			return struct {
				reply
				MatchID    uint64     `json:"matchId"`
				Controller rpc.CapRef `json:"controller"`
			}{okReply, m.ID(), call.Export("controller", newMatchController(m))}, nil
		}).
		On("getMatchResult", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				MatchID uint64 `json:"matchId"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			res, err := svc.MatchResult(p.MatchID)
			if err != nil {
				return replyOf(err), nil
			}
			return struct {
				reply
				Result matchmaking.MatchResult `json:"result"`
			}{okReply, res}, nil
		})
}

// newMatchController binds a MatchController capability to m.
func newMatchController(m *matchmaking.Match) *rpc.Interface {
	return rpc.NewInterface("MatchController").
		On("getInfo", func(_ context.Context, _ *rpc.Call) (any, error) {
			return struct {
				reply
				Info matchmaking.MatchInfo `json:"info"`
			}{okReply, m.Info()}, nil
		}).
		On("signalReady", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				PlayerID uint64 `json:"playerId"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				AllReady bool `json:"allReady"`
			}{okReply, m.SignalReady(p.PlayerID)}, nil
		}).
		On("reportResult", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Result matchmaking.MatchResult `json:"result"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			state, err := m.ReportResult(p.Result)
			return matchStateReply{replyOf(err), state}, nil
		}).
		On("cancelMatch", func(_ context.Context, _ *rpc.Call) (any, error) {
			state, err := m.Cancel()
			return matchStateReply{replyOf(err), state}, nil
		})
}
