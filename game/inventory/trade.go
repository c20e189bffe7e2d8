package inventory

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/gamecaps/game/types"
	"go.uber.org/zap"
)

var tradeIDCounter uint64

func nextTradeID() uint64 {
	return atomic.AddUint64(&tradeIDCounter, 1)
}

// TradeState is the negotiation state of a trade.
type TradeState uint8

const (
	TradeProposing TradeState = iota
	TradeAccepted
	TradeConfirmed
	TradeCancelled
)

var tradeStateEnum = types.Enum{Kind: "trade state", Names: []string{"proposing", "accepted", "confirmed", "cancelled"}}

func (s TradeState) String() string                { return tradeStateEnum.Name(uint8(s)) }
func (s TradeState) MarshalText() ([]byte, error) { return tradeStateEnum.Text(uint8(s)) }

func (s *TradeState) UnmarshalText(b []byte) error {
	v, err := tradeStateEnum.Parse(b)
	if err != nil {
		return err
	}
	*s = TradeState(v)
	return nil
}

// Side says which party a trade handle speaks for.
type Side uint8

const (
	SideInitiator Side = iota
	SideTarget
)

func (s Side) String() string {
	if s == SideTarget {
		return "target"
	}
	return "initiator"
}

// Offer is one side's resolved offer.
type Offer struct {
	Slots    []Slot `json:"slots"`
	Accepted bool   `json:"accepted"`
}

type tradeOffer struct {
	playerID uint64
	slots    []uint16
	accepted bool
}

// trade is the record shared by both handles of one negotiation.
type trade struct {
	mu     sync.Mutex
	id     uint64
	offers [2]tradeOffer
	state  TradeState
}

// TradeHandle is one party's view of a trade. The two handles returned by
// StartTrade share a record and differ only in the side they address.
type TradeHandle struct {
	t      *trade
	side   Side
	svc    *Service
	logger *zap.Logger
}

// StartTrade opens a fresh negotiation in the proposing state and returns
// the initiator-bound and target-bound handles.
func (svc *Service) StartTrade(initiatorID, targetID uint64) (*TradeHandle, *TradeHandle) {
	t := &trade{
		id: nextTradeID(),
		offers: [2]tradeOffer{
			SideInitiator: {playerID: initiatorID},
			SideTarget:    {playerID: targetID},
		},
		state: TradeProposing,
	}
	svc.logger.Info("trade started",
		zap.Uint64("trade_id", t.id), zap.Uint64("initiator", initiatorID), zap.Uint64("target", targetID))
	return &TradeHandle{t: t, side: SideInitiator, svc: svc, logger: svc.logger},
		&TradeHandle{t: t, side: SideTarget, svc: svc, logger: svc.logger}
}

// ID returns the trade id shared by both handles.
func (h *TradeHandle) ID() uint64 { return h.t.id }

// Side returns the party this handle speaks for.
func (h *TradeHandle) Side() Side { return h.side }

func (h *TradeHandle) mine() *tradeOffer   { return &h.t.offers[h.side] }
func (h *TradeHandle) theirs() *tradeOffer { return &h.t.offers[1-h.side] }

// OfferItems replaces this side's offered slots. The acceptance flag of
// either side is left as is.
func (h *TradeHandle) OfferItems(slots []uint16) Offer {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	o := h.mine()
	o.slots = dedupe(slots)
	return h.resolve(o)
}

// RemoveItems drops slots from this side's offer and clears this side's
// acceptance.
func (h *TradeHandle) RemoveItems(slots []uint16) Offer {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	o := h.mine()
	o.slots = slices.DeleteFunc(o.slots, func(s uint16) bool { return slices.Contains(slots, s) })
	o.accepted = false
	return h.resolve(o)
}

// Accept marks this side as accepted. Once both sides have accepted a
// proposing trade it moves to accepted.
func (h *TradeHandle) Accept() TradeState {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	h.mine().accepted = true
	if h.t.state == TradeProposing && h.t.offers[SideInitiator].accepted && h.t.offers[SideTarget].accepted {
		h.t.state = TradeAccepted
		h.logger.Info("trade accepted", zap.Uint64("trade_id", h.t.id))
	}
	return h.t.state
}

// Confirm completes an accepted trade. In any other state it returns the
// current state and ErrInvalidState.
func (h *TradeHandle) Confirm() (TradeState, error) {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	if h.t.state != TradeAccepted {
		return h.t.state, fmt.Errorf("confirm trade %d in state %s: %w", h.t.id, h.t.state, types.ErrInvalidState)
	}
	h.t.state = TradeConfirmed
	h.logger.Info("trade confirmed", zap.Uint64("trade_id", h.t.id), zap.Stringer("by", h.side))
	return h.t.state, nil
}

// Cancel forces the trade into the terminal cancelled state.
func (h *TradeHandle) Cancel() TradeState {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	h.t.state = TradeCancelled
	h.logger.Info("trade cancelled", zap.Uint64("trade_id", h.t.id), zap.Stringer("by", h.side))
	return h.t.state
}

// ViewOtherOffer returns the other party's offer.
func (h *TradeHandle) ViewOtherOffer() Offer {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return h.resolve(h.theirs())
}

func (h *TradeHandle) State() TradeState {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return h.t.state
}

// resolve must be called with h.t.mu held.
func (h *TradeHandle) resolve(o *tradeOffer) Offer {
	return Offer{Slots: h.svc.lookup(o.playerID, o.slots), Accepted: o.accepted}
}

func dedupe(in []uint16) []uint16 {
	out := make([]uint16, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
