package ws

import (
	"context"

	"github.com/kasuganosora/gamecaps/game/inventory"
	"github.com/kasuganosora/gamecaps/rpc"
)

type playerParams struct {
	PlayerID uint64 `json:"playerId"`
}

type slotsParams struct {
	SlotIndexes []uint16 `json:"slotIndexes"`
}

type offerReply struct {
	reply
	inventory.Offer
}

type tradeStateReply struct {
	reply
	State inventory.TradeState `json:"state"`
}

func newInventoryService(svc *inventory.Service) *rpc.Interface {
	return rpc.NewInterface("InventoryService").
		On("getInventory", func(_ context.Context, call *rpc.Call) (any, error) {
			var p playerParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				Inventory inventory.Inventory `json:"inventory"`
			}{okReply, svc.GetInventory(p.PlayerID)}, nil
		}).
		On("addItem", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				PlayerID uint64         `json:"playerId"`
				Item     inventory.Item `json:"item"`
				Quantity uint32         `json:"quantity"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				Slot inventory.Slot `json:"slot"`
			}{okReply, svc.AddItem(p.PlayerID, p.Item, p.Quantity)}, nil
		}).
		On("removeItem", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				PlayerID  uint64 `json:"playerId"`
				SlotIndex uint16 `json:"slotIndex"`
				Quantity  uint32 `json:"quantity"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return replyOf(svc.RemoveItem(p.PlayerID, p.SlotIndex, p.Quantity)), nil
		}).
		On("filterByRarity", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				PlayerID  uint64           `json:"playerId"`
				MinRarity inventory.Rarity `json:"minRarity"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				Slots []inventory.Slot `json:"slots"`
			}{okReply, svc.FilterByRarity(p.PlayerID, p.MinRarity)}, nil
		}).
		On("startTrade", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				InitiatorID uint64 `json:"initiatorId"`
				TargetID    uint64 `json:"targetId"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			mine, theirs := svc.StartTrade(p.InitiatorID, p.TargetID)
			return struct {
				reply
				TradeID     uint64     `json:"tradeId"`
				Session     rpc.CapRef `json:"session"`
				Counterpart rpc.CapRef `json:"counterpart"`
			}{
				okReply,
				mine.ID(),
				call.Export("session", newTradeSession(mine)),
				call.Export("counterpart", newTradeSession(theirs)),
			}, nil
		})
}

// newTradeSession binds a TradeSession capability to one side of a trade.
func newTradeSession(h *inventory.TradeHandle) *rpc.Interface {
	return rpc.NewInterface("TradeSession").
		On("offerItems", func(_ context.Context, call *rpc.Call) (any, error) {
			var p slotsParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return offerReply{okReply, h.OfferItems(p.SlotIndexes)}, nil
		}).
		On("removeItems", func(_ context.Context, call *rpc.Call) (any, error) {
			var p slotsParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return offerReply{okReply, h.RemoveItems(p.SlotIndexes)}, nil
		}).
		On("accept", func(_ context.Context, _ *rpc.Call) (any, error) {
			return tradeStateReply{okReply, h.Accept()}, nil
		}).
		On("confirm", func(_ context.Context, _ *rpc.Call) (any, error) {
			state, err := h.Confirm()
			return tradeStateReply{replyOf(err), state}, nil
		}).
		On("cancel", func(_ context.Context, _ *rpc.Call) (any, error) {
			return tradeStateReply{okReply, h.Cancel()}, nil
		}).
		On("viewOtherOffer", func(_ context.Context, _ *rpc.Call) (any, error) {
			return offerReply{okReply, h.ViewOtherOffer()}, nil
		}).
		On("getState", func(_ context.Context, _ *rpc.Call) (any, error) {
			return struct {
				tradeStateReply
				Side    string `json:"side"`
				TradeID uint64 `json:"tradeId"`
			}{tradeStateReply{okReply, h.State()}, h.Side().String(), h.ID()}, nil
		})
}
