package chat

import (
	"context"
	"sync"

	"github.com/kasuganosora/gamecaps/game/types"
)

// Room is a chat room record shared by the directory and every capability
// issued for it.
type Room struct {
	mu          sync.Mutex
	id          uint64
	name        string
	topic       string
	memberCount uint32
	current     types.PlayerInfo
	history     []Message
	feed        Feed
}

func (r *Room) join(p types.PlayerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberCount++
	r.current = p
}

// Name returns the directory key of the room.
func (r *Room) Name() string { return r.name }

// Info returns the current directory view.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{ID: r.id, Name: r.name, Topic: r.topic, MemberCount: r.memberCount}
}

// SendMessage appends a normal message under the room's current user.
func (r *Room) SendMessage(ctx context.Context, content string) Message {
	return r.appendMessage(ctx, KindNormal, content)
}

// SendEmote appends an emote under the room's current user.
func (r *Room) SendEmote(ctx context.Context, content string) Message {
	return r.appendMessage(ctx, KindEmote, content)
}

func (r *Room) appendMessage(ctx context.Context, kind MessageKind, content string) Message {
	r.mu.Lock()
	msg := Message{
		Sender:    r.current,
		Content:   content,
		Timestamp: types.BaseTimestamp + int64(len(r.history))*types.TimestampStep,
		Kind:      kind,
	}
	r.history = append(r.history, msg)
	r.mu.Unlock()

	if r.feed != nil {
		r.feed.Publish(ctx, r.name, msg)
	}
	return msg
}

// History returns the most recent limit messages, oldest first.
func (r *Room) History(limit uint32) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.history)
	if int(limit) < n {
		n = int(limit)
	}
	out := make([]Message, n)
	copy(out, r.history[len(r.history)-n:])
	return out
}

// Leave decrements the member count, never below zero. The room stays
// usable through the same capability afterwards.
func (r *Room) Leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memberCount > 0 {
		r.memberCount--
	}
}
