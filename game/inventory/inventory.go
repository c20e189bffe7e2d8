package inventory

import (
	"fmt"
	"sync"

	"github.com/kasuganosora/gamecaps/game/types"
	"go.uber.org/zap"
)

// Capacity is the fixed slot capacity reported for every inventory. It is
// informational; AddItem does not enforce it.
const Capacity uint16 = 20

// Rarity is ordered: Common < Uncommon < Rare < Epic < Legendary.
type Rarity uint8

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
)

var rarityEnum = types.Enum{Kind: "rarity", Names: []string{"common", "uncommon", "rare", "epic", "legendary"}}

func (r Rarity) String() string                { return rarityEnum.Name(uint8(r)) }
func (r Rarity) MarshalText() ([]byte, error) { return rarityEnum.Text(uint8(r)) }

func (r *Rarity) UnmarshalText(b []byte) error {
	v, err := rarityEnum.Parse(b)
	if err != nil {
		return err
	}
	*r = Rarity(v)
	return nil
}

type Attribute struct {
	Name  string `json:"name"`
	Value int32  `json:"value"`
}

type Item struct {
	ItemID     uint64      `json:"itemId"`
	Name       string      `json:"name"`
	Rarity     Rarity      `json:"rarity"`
	Level      uint16      `json:"level"`
	StackSize  uint32      `json:"stackSize"`
	Attributes []Attribute `json:"attributes"`
}

// Slot holds one addItem call's worth of items. SlotIndex is never reused.
type Slot struct {
	SlotIndex uint16 `json:"slotIndex"`
	Item      Item   `json:"item"`
	Quantity  uint32 `json:"quantity"`
}

// Inventory is a snapshot of a player's bag.
type Inventory struct {
	OwnerID   uint64 `json:"ownerId"`
	Capacity  uint16 `json:"capacity"`
	UsedSlots uint16 `json:"usedSlots"`
	Slots     []Slot `json:"slots"`
}

type bag struct {
	slots     []Slot
	nextIndex uint16
}

func (b *bag) find(index uint16) int {
	for i := range b.slots {
		if b.slots[i].SlotIndex == index {
			return i
		}
	}
	return -1
}

// Service stores per-player inventories and creates trade sessions.
type Service struct {
	mu     sync.Mutex
	bags   map[uint64]*bag
	logger *zap.Logger
}

// NewService creates an empty inventory store.
func NewService(logger *zap.Logger) *Service {
	return &Service{bags: make(map[uint64]*bag), logger: logger}
}

// GetInventory returns playerID's inventory. Unknown players get an empty
// inventory that is not stored.
func (svc *Service) GetInventory(playerID uint64) Inventory {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	inv := Inventory{OwnerID: playerID, Capacity: Capacity, Slots: []Slot{}}
	if b, ok := svc.bags[playerID]; ok {
		inv.Slots = cloneSlots(b.slots)
		inv.UsedSlots = uint16(len(b.slots))
	}
	return inv
}

// AddItem appends a new slot; it never merges into an existing stack.
func (svc *Service) AddItem(playerID uint64, item Item, qty uint32) Slot {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	b, ok := svc.bags[playerID]
	if !ok {
		b = &bag{}
		svc.bags[playerID] = b
	}
	s := Slot{SlotIndex: b.nextIndex, Item: cloneItem(item), Quantity: qty}
	b.nextIndex++
	b.slots = append(b.slots, s)
	svc.logger.Debug("item added",
		zap.Uint64("player_id", playerID), zap.Uint16("slot", s.SlotIndex), zap.Uint32("qty", qty))
	return s
}

// RemoveItem takes qty from the slot, removing the slot once qty reaches its
// quantity. Remaining slots keep their indexes.
func (svc *Service) RemoveItem(playerID uint64, slotIndex uint16, qty uint32) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	b, ok := svc.bags[playerID]
	if !ok {
		return fmt.Errorf("inventory of player %d: %w", playerID, types.ErrNotFound)
	}
	i := b.find(slotIndex)
	if i < 0 {
		return fmt.Errorf("slot %d of player %d: %w", slotIndex, playerID, types.ErrNotFound)
	}
	if qty >= b.slots[i].Quantity {
		b.slots = append(b.slots[:i], b.slots[i+1:]...)
		return nil
	}
	b.slots[i].Quantity -= qty
	return nil
}

// FilterByRarity returns the slots whose item rarity is at least min, in slot order.
func (svc *Service) FilterByRarity(playerID uint64, min Rarity) []Slot {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]Slot, 0)
	b, ok := svc.bags[playerID]
	if !ok {
		return out
	}
	for _, s := range b.slots {
		if s.Item.Rarity >= min {
			out = append(out, cloneSlot(s))
		}
	}
	return out
}

// lookup resolves slot indexes against playerID's inventory, skipping any
// that no longer exist.
func (svc *Service) lookup(playerID uint64, indexes []uint16) []Slot {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]Slot, 0, len(indexes))
	b, ok := svc.bags[playerID]
	if !ok {
		return out
	}
	for _, idx := range indexes {
		if i := b.find(idx); i >= 0 {
			out = append(out, cloneSlot(b.slots[i]))
		}
	}
	return out
}

func cloneItem(it Item) Item {
	attrs := make([]Attribute, len(it.Attributes))
	copy(attrs, it.Attributes)
	it.Attributes = attrs
	return it
}

func cloneSlot(s Slot) Slot {
	s.Item = cloneItem(s.Item)
	return s
}

func cloneSlots(in []Slot) []Slot {
	out := make([]Slot, len(in))
	for i, s := range in {
		out[i] = cloneSlot(s)
	}
	return out
}
