package world

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kasuganosora/gamecaps/game/types"
	"go.uber.org/zap"
)

// Kind classifies an entity.
type Kind uint8

const (
	KindPlayer Kind = iota
	KindNPC
	KindMonster
)

var kindEnum = types.Enum{Kind: "entity kind", Names: []string{"player", "npc", "monster"}}

func (k Kind) String() string                { return kindEnum.Name(uint8(k)) }
func (k Kind) MarshalText() ([]byte, error) { return kindEnum.Text(uint8(k)) }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := kindEnum.Parse(b)
	if err != nil {
		return err
	}
	*k = Kind(v)
	return nil
}

// Entity is a snapshot of a spawned entity. Health stays within
// [0, MaxHealth] and Alive always equals Health > 0.
type Entity struct {
	ID        uint64        `json:"id"`
	Kind      Kind          `json:"kind"`
	Name      string        `json:"name"`
	Position  types.Vec3    `json:"position"`
	Health    int32         `json:"health"`
	MaxHealth int32         `json:"maxHealth"`
	Faction   types.Faction `json:"faction"`
	Alive     bool          `json:"alive"`
}

// Filter narrows an area query. The zero value matches everything.
type Filter struct {
	Kind    *Kind          `json:"byKind,omitempty"`
	Faction *types.Faction `json:"byFaction,omitempty"`
}

// ByKind matches entities of kind k.
func ByKind(k Kind) Filter { return Filter{Kind: &k} }

// ByFaction matches entities of faction f.
func ByFaction(f types.Faction) Filter { return Filter{Faction: &f} }

func (f Filter) match(e *Entity) bool {
	switch {
	case f.Kind != nil:
		return e.Kind == *f.Kind
	case f.Faction != nil:
		return e.Faction == *f.Faction
	default:
		return true
	}
}

// World is the authoritative entity store. All methods are safe for
// concurrent use; each one is a single atomic step.
type World struct {
	mu       sync.Mutex
	entities map[uint64]*Entity
	nextID   uint64
	logger   *zap.Logger
}

// New creates an empty World. Entity ids start at 1.
func New(logger *zap.Logger) *World {
	return &World{
		entities: make(map[uint64]*Entity),
		nextID:   1,
		logger:   logger,
	}
}

// Spawn creates an entity at full health.
func (w *World) Spawn(kind Kind, name string, pos types.Vec3, faction types.Faction, maxHealth int32) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := &Entity{
		ID:        w.nextID,
		Kind:      kind,
		Name:      name,
		Position:  pos,
		Health:    maxHealth,
		MaxHealth: maxHealth,
		Faction:   faction,
		Alive:     maxHealth > 0,
	}
	w.nextID++
	w.entities[e.ID] = e
	w.logger.Debug("entity spawned",
		zap.Uint64("entity_id", e.ID), zap.Stringer("kind", kind), zap.String("name", name))
	return *e
}

// Despawn removes the entity.
func (w *World) Despawn(id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entities[id]; !ok {
		return notFound(id)
	}
	delete(w.entities, id)
	w.logger.Debug("entity despawned", zap.Uint64("entity_id", id))
	return nil
}

// Get returns a snapshot of the entity.
func (w *World) Get(id uint64) (Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return Entity{}, notFound(id)
	}
	return *e, nil
}

// Move replaces the entity's position. There are no bounds or collision checks.
func (w *World) Move(id uint64, pos types.Vec3) (Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return Entity{}, notFound(id)
	}
	e.Position = pos
	return *e, nil
}

// Damage subtracts amount from the entity's health. The amount is used as
// given, so a negative amount heals. Health is clamped to [0, MaxHealth] and
// Alive is re-derived afterwards. killed is true only on the call that takes
// a living entity to zero.
func (w *World) Damage(id uint64, amount int32) (Entity, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return Entity{}, false, notFound(id)
	}
	wasAlive := e.Alive
	health := int64(e.Health) - int64(amount)
	switch {
	case health < 0:
		health = 0
	case health > int64(e.MaxHealth):
		health = int64(e.MaxHealth)
	}
	e.Health = int32(health)
	e.Alive = e.Health > 0
	killed := wasAlive && !e.Alive
	if killed {
		w.logger.Debug("entity killed", zap.Uint64("entity_id", id))
	}
	return *e, killed, nil
}

// QueryArea returns every entity within radius of center (inclusive) that
// passes filter. Results are ordered by id.
func (w *World) QueryArea(center types.Vec3, radius float32, filter Filter) []Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entity, 0)
	for _, e := range w.entities {
		if distance(e.Position, center) > float64(radius) {
			continue
		}
		if !filter.match(e) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live entries in the store.
func (w *World) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entities)
}

func distance(a, b types.Vec3) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func notFound(id uint64) error {
	return fmt.Errorf("entity %d: %w", id, types.ErrNotFound)
}
