package ws

import (
	"context"

	"github.com/kasuganosora/gamecaps/game/chat"
	"github.com/kasuganosora/gamecaps/game/types"
	"github.com/kasuganosora/gamecaps/rpc"
)

type messageReply struct {
	reply
	Message chat.Message `json:"message"`
}

func newChatService(svc *chat.Service) *rpc.Interface {
	return rpc.NewInterface("ChatService").
		On("createRoom", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Name  string `json:"name"`
				Topic string `json:"topic"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			info, room := svc.CreateRoom(p.Name, p.Topic)
			return struct {
				reply
				Info chat.RoomInfo `json:"info"`
				Room rpc.CapRef    `json:"room"`
			}{okReply, info, call.Export("room", newChatRoom(room))}, nil
		}).
		On("joinRoom", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Name   string           `json:"name"`
				Player types.PlayerInfo `json:"player"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			room, err := svc.JoinRoom(p.Name, p.Player)
			if err != nil {
				return replyOf(err), nil
			}
			return struct {
				reply
				Room rpc.CapRef `json:"room"`
			}{okReply, call.Export("room", newChatRoom(room))}, nil
		}).
		On("listRooms", func(_ context.Context, _ *rpc.Call) (any, error) {
			return struct {
				reply
				Rooms []chat.RoomInfo `json:"rooms"`
			}{okReply, svc.ListRooms()}, nil
		}).
		On("whisper", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				From    types.PlayerInfo `json:"from"`
				ToID    uint64           `json:"toId"`
				Content string           `json:"content"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return messageReply{okReply, svc.Whisper(p.From, p.ToID, p.Content)}, nil
		})
}

type contentParams struct {
	Content string `json:"content"`
}

// newChatRoom binds a ChatRoom capability to room. Every capability issued
// for the same room shares its record.
func newChatRoom(room *chat.Room) *rpc.Interface {
	return rpc.NewInterface("ChatRoom").
		On("sendMessage", func(ctx context.Context, call *rpc.Call) (any, error) {
			var p contentParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return messageReply{okReply, room.SendMessage(ctx, p.Content)}, nil
		}).
		On("sendEmote", func(ctx context.Context, call *rpc.Call) (any, error) {
			var p contentParams
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return messageReply{okReply, room.SendEmote(ctx, p.Content)}, nil
		}).
		On("getHistory", func(_ context.Context, call *rpc.Call) (any, error) {
			var p struct {
				Limit uint32 `json:"limit"`
			}
			if err := call.Decode(&p); err != nil {
				return nil, err
			}
			return struct {
				reply
				Messages []chat.Message `json:"messages"`
			}{okReply, room.History(p.Limit)}, nil
		}).
		On("getInfo", func(_ context.Context, _ *rpc.Call) (any, error) {
			return struct {
				reply
				Info chat.RoomInfo `json:"info"`
			}{okReply, room.Info()}, nil
		}).
		On("leave", func(_ context.Context, _ *rpc.Call) (any, error) {
			room.Leave()
			return okReply, nil
		})
}
