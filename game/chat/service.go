package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/gamecaps/game/types"
	"go.uber.org/zap"
)

// MessageKind tags a chat message.
type MessageKind uint8

const (
	KindNormal MessageKind = iota
	KindEmote
	KindSystem
	KindWhisper
)

var kindEnum = types.Enum{Kind: "message kind", Names: []string{"normal", "emote", "system", "whisper"}}

func (k MessageKind) String() string                { return kindEnum.Name(uint8(k)) }
func (k MessageKind) MarshalText() ([]byte, error) { return kindEnum.Text(uint8(k)) }

func (k *MessageKind) UnmarshalText(b []byte) error {
	v, err := kindEnum.Parse(b)
	if err != nil {
		return err
	}
	*k = MessageKind(v)
	return nil
}

// Message is one entry of a room history or a whisper. TargetID is set only
// for whispers.
type Message struct {
	Sender    types.PlayerInfo `json:"sender"`
	Content   string           `json:"content"`
	Timestamp int64            `json:"timestamp"`
	Kind      MessageKind      `json:"kind"`
	TargetID  uint64           `json:"targetId,omitempty"`
}

// RoomInfo is the directory view of a room.
type RoomInfo struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Topic       string `json:"topic"`
	MemberCount uint32 `json:"memberCount"`
}

// Feed receives every message appended to any room.
type Feed interface {
	Publish(ctx context.Context, room string, msg Message)
}

// Service is the room directory. Rooms are keyed by name and never deleted.
type Service struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	nextID uint64
	feed   Feed
	logger *zap.Logger
}

// NewService creates a Service. feed may be nil.
func NewService(feed Feed, logger *zap.Logger) *Service {
	return &Service{
		rooms:  make(map[string]*Room),
		nextID: 1,
		feed:   feed,
		logger: logger,
	}
}

// CreateRoom registers a new room under name, replacing any room that
// already had it. Capabilities held on the replaced room keep working
// against the old record.
func (s *Service) CreateRoom(name, topic string) (RoomInfo, *Room) {
	s.mu.Lock()
	r := &Room{
		id:    s.nextID,
		name:  name,
		topic: topic,
		feed:  s.feed,
	}
	s.nextID++
	_, replaced := s.rooms[name]
	s.rooms[name] = r
	s.mu.Unlock()

	s.logger.Info("chat room created",
		zap.Uint64("room_id", r.id), zap.String("room", name), zap.Bool("replaced", replaced))
	return r.Info(), r
}

// JoinRoom increments the member count and makes player the room's current
// user for every capability on that room.
func (s *Service) JoinRoom(name string, player types.PlayerInfo) (*Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("room %q: %w", name, types.ErrNotFound)
	}
	r.join(player)
	return r, nil
}

// ListRooms returns every room, sorted by name.
func (s *Service) ListRooms() []RoomInfo {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Whisper builds a direct message. It touches no room state.
func (s *Service) Whisper(from types.PlayerInfo, toID uint64, content string) Message {
	return Message{
		Sender:    from,
		Content:   content,
		Timestamp: types.BaseTimestamp,
		Kind:      KindWhisper,
		TargetID:  toID,
	}
}

// RoomCount returns the number of rooms in the directory.
func (s *Service) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
