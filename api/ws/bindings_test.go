package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kasuganosora/gamecaps/cache"
	"github.com/kasuganosora/gamecaps/game"
	"github.com/kasuganosora/gamecaps/game/chat"
	"github.com/kasuganosora/gamecaps/game/inventory"
	"github.com/kasuganosora/gamecaps/game/matchmaking"
	"github.com/kasuganosora/gamecaps/game/types"
	"github.com/kasuganosora/gamecaps/game/world"
	"github.com/kasuganosora/gamecaps/rpc"
	"github.com/kasuganosora/gamecaps/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	boot  *rpc.Capability
	svcs  *game.Services
	cache cache.Cache
}

// serve runs schema's bootstrap over an in-memory pipe.
func serve(t *testing.T, schema string) fixture {
	t.Helper()
	c, ps := testutil.SetupTestCache(t)
	svcs := game.NewServices(c, ps, zap.NewNop())
	boot, err := NewBootstrap(schema, svcs)
	require.NoError(t, err)

	srvEnd, cliEnd := rpc.Pipe()
	conn := rpc.NewConn(srvEnd, boot, rpc.Options{})
	done := make(chan struct{})
	go func() {
		_ = conn.Serve(context.Background())
		close(done)
	}()
	client := rpc.NewClient(cliEnd, nil)
	t.Cleanup(func() {
		_ = client.Close()
		<-done
	})
	return fixture{boot: client.Bootstrap(), svcs: svcs, cache: c}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var alice = types.PlayerInfo{ID: 7, Name: "Alice", Faction: types.FactionAlliance, Level: 12}

func TestNewBootstrap_Schemas(t *testing.T) {
	svcs := game.NewServices(nil, nil, zap.NewNop())
	cases := map[string]string{
		"game_world":  "GameWorld",
		"gameworld":   "GameWorld",
		"chat":        "ChatService",
		"inventory":   "InventoryService",
		"matchmaking": "MatchmakingService",
	}
	for schema, name := range cases {
		srv, err := NewBootstrap(schema, svcs)
		require.NoError(t, err, schema)
		assert.Equal(t, name, srv.Name())
	}

	_, err := NewBootstrap("battle", svcs)
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

type entityResp struct {
	Status string        `json:"status"`
	Entity *world.Entity `json:"entity"`
	Killed bool          `json:"killed"`
}

func TestGameWorld_Lifecycle(t *testing.T) {
	f := serve(t, SchemaGameWorld)
	ctx := testCtx(t)

	var spawned entityResp
	require.NoError(t, f.boot.Call(ctx, "spawnEntity", map[string]any{
		"kind":      "monster",
		"name":      "Orc",
		"position":  types.Vec3{X: 1, Y: 2, Z: 3},
		"faction":   "horde",
		"maxHealth": 100,
	}).Struct(ctx, &spawned))
	assert.Equal(t, "ok", spawned.Status)
	require.NotNil(t, spawned.Entity)
	assert.Equal(t, uint64(1), spawned.Entity.ID)
	assert.Equal(t, world.KindMonster, spawned.Entity.Kind)
	assert.Equal(t, int32(100), spawned.Entity.Health)
	assert.True(t, spawned.Entity.Alive)

	var moved entityResp
	require.NoError(t, f.boot.Call(ctx, "moveEntity", map[string]any{
		"id": 1, "position": types.Vec3{X: 10},
	}).Struct(ctx, &moved))
	assert.Equal(t, float32(10), moved.Entity.Position.X)

	var hit entityResp
	require.NoError(t, f.boot.Call(ctx, "damageEntity", map[string]any{"id": 1, "amount": 150}).Struct(ctx, &hit))
	assert.True(t, hit.Killed)
	assert.Equal(t, int32(0), hit.Entity.Health)
	assert.False(t, hit.Entity.Alive)

	var missing entityResp
	require.NoError(t, f.boot.Call(ctx, "getEntity", map[string]any{"id": 42}).Struct(ctx, &missing))
	assert.Equal(t, "notFound", missing.Status)
	assert.Nil(t, missing.Entity)

	var despawn struct {
		Status string `json:"status"`
	}
	require.NoError(t, f.boot.Call(ctx, "despawnEntity", map[string]any{"id": 1}).Struct(ctx, &despawn))
	assert.Equal(t, "ok", despawn.Status)
	require.NoError(t, f.boot.Call(ctx, "despawnEntity", map[string]any{"id": 1}).Struct(ctx, &despawn))
	assert.Equal(t, "notFound", despawn.Status)
}

func TestGameWorld_QueryAreaFilters(t *testing.T) {
	f := serve(t, SchemaGameWorld)
	ctx := testCtx(t)

	f.svcs.World.Spawn(world.KindPlayer, "Hero", types.Vec3{}, types.FactionAlliance, 100)
	f.svcs.World.Spawn(world.KindMonster, "Wolf", types.Vec3{X: 3, Y: 4}, types.FactionNeutral, 50)
	f.svcs.World.Spawn(world.KindMonster, "Dragon", types.Vec3{X: 100}, types.FactionHorde, 900)

	type areaResp struct {
		Status   string         `json:"status"`
		Entities []world.Entity `json:"entities"`
		Count    uint32         `json:"count"`
	}

	var all areaResp
	require.NoError(t, f.boot.Call(ctx, "queryArea", map[string]any{
		"center": types.Vec3{}, "radius": 5,
	}).Struct(ctx, &all))
	assert.Equal(t, uint32(2), all.Count)

	var monsters areaResp
	require.NoError(t, f.boot.Call(ctx, "queryArea", map[string]any{
		"center": types.Vec3{}, "radius": 5, "filter": map[string]any{"byKind": "monster"},
	}).Struct(ctx, &monsters))
	require.Len(t, monsters.Entities, 1)
	assert.Equal(t, "Wolf", monsters.Entities[0].Name)

	var none areaResp
	require.NoError(t, f.boot.Call(ctx, "queryArea", map[string]any{
		"center": types.Vec3{}, "radius": 5, "filter": map[string]any{"byFaction": "pirates"},
	}).Struct(ctx, &none))
	assert.NotNil(t, none.Entities)
	assert.Empty(t, none.Entities)
}

type messageResp struct {
	Status  string       `json:"status"`
	Message chat.Message `json:"message"`
}

func TestChat_RoomCapability(t *testing.T) {
	f := serve(t, SchemaChat)
	ctx := testCtx(t)

	created := f.boot.Call(ctx, "createRoom", map[string]any{"name": "lobby", "topic": "general"})
	// Sent before createRoom has returned.
	first := created.Cap("room").Call(ctx, "sendMessage", map[string]any{"content": "first"})

	var info struct {
		Status string        `json:"status"`
		Info   chat.RoomInfo `json:"info"`
	}
	require.NoError(t, created.Struct(ctx, &info))
	assert.Equal(t, "lobby", info.Info.Name)
	assert.Equal(t, uint32(0), info.Info.MemberCount)

	var m1 messageResp
	require.NoError(t, first.Struct(ctx, &m1))
	assert.Equal(t, "first", m1.Message.Content)
	assert.Equal(t, types.BaseTimestamp, m1.Message.Timestamp)

	joined := f.boot.Call(ctx, "joinRoom", map[string]any{"name": "lobby", "player": alice})
	room := joined.Cap("room")
	var m2 messageResp
	require.NoError(t, room.Call(ctx, "sendEmote", map[string]any{"content": "waves"}).Struct(ctx, &m2))
	assert.Equal(t, alice, m2.Message.Sender)
	assert.Equal(t, chat.KindEmote, m2.Message.Kind)
	assert.Equal(t, types.BaseTimestamp+types.TimestampStep, m2.Message.Timestamp)

	var hist struct {
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, room.Call(ctx, "getHistory", map[string]any{"limit": 10}).Struct(ctx, &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "first", hist.Messages[0].Content)

	var roomInfo struct {
		Info chat.RoomInfo `json:"info"`
	}
	require.NoError(t, room.Call(ctx, "getInfo", nil).Struct(ctx, &roomInfo))
	assert.Equal(t, uint32(1), roomInfo.Info.MemberCount)
	require.NoError(t, room.Call(ctx, "leave", nil).Wait(ctx))
	require.NoError(t, room.Call(ctx, "getInfo", nil).Struct(ctx, &roomInfo))
	assert.Equal(t, uint32(0), roomInfo.Info.MemberCount)

	recent, err := f.svcs.Feed.Recent(ctx, "lobby", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestChat_JoinMissingRoomBreaksPromise(t *testing.T) {
	f := serve(t, SchemaChat)
	ctx := testCtx(t)

	joined := f.boot.Call(ctx, "joinRoom", map[string]any{"name": "nowhere", "player": alice})
	pipelined := joined.Cap("room").Call(ctx, "sendMessage", map[string]any{"content": "hello"})

	var res struct {
		Status string `json:"status"`
	}
	require.NoError(t, joined.Struct(ctx, &res))
	assert.Equal(t, "notFound", res.Status)
	assert.Error(t, pipelined.Wait(ctx))
}

func TestChat_WhisperAndList(t *testing.T) {
	f := serve(t, SchemaChat)
	ctx := testCtx(t)

	var w messageResp
	require.NoError(t, f.boot.Call(ctx, "whisper", map[string]any{
		"from": alice, "toId": 9, "content": "psst",
	}).Struct(ctx, &w))
	assert.Equal(t, chat.KindWhisper, w.Message.Kind)
	assert.Equal(t, uint64(9), w.Message.TargetID)

	require.NoError(t, f.boot.Call(ctx, "createRoom", map[string]any{"name": "b"}).Wait(ctx))
	require.NoError(t, f.boot.Call(ctx, "createRoom", map[string]any{"name": "a"}).Wait(ctx))
	var list struct {
		Rooms []chat.RoomInfo `json:"rooms"`
	}
	require.NoError(t, f.boot.Call(ctx, "listRooms", nil).Struct(ctx, &list))
	require.Len(t, list.Rooms, 2)
	assert.Equal(t, "a", list.Rooms[0].Name)
}

type tradeResp struct {
	Status string               `json:"status"`
	State  inventory.TradeState `json:"state"`
}

func TestInventory_ItemsAndRarity(t *testing.T) {
	f := serve(t, SchemaInventory)
	ctx := testCtx(t)

	sword := inventory.Item{ItemID: 1, Name: "Sword", Rarity: inventory.RarityEpic, Level: 10, StackSize: 1}
	potion := inventory.Item{ItemID: 2, Name: "Potion", Rarity: inventory.RarityCommon, StackSize: 20}
	for _, it := range []inventory.Item{sword, potion} {
		require.NoError(t, f.boot.Call(ctx, "addItem", map[string]any{"playerId": 1, "item": it, "quantity": 5}).Wait(ctx))
	}

	var inv struct {
		Inventory inventory.Inventory `json:"inventory"`
	}
	require.NoError(t, f.boot.Call(ctx, "getInventory", map[string]any{"playerId": 1}).Struct(ctx, &inv))
	assert.Equal(t, uint16(2), inv.Inventory.UsedSlots)
	assert.Equal(t, inventory.Capacity, inv.Inventory.Capacity)

	var rare struct {
		Slots []inventory.Slot `json:"slots"`
	}
	require.NoError(t, f.boot.Call(ctx, "filterByRarity", map[string]any{"playerId": 1, "minRarity": "rare"}).Struct(ctx, &rare))
	require.Len(t, rare.Slots, 1)
	assert.Equal(t, "Sword", rare.Slots[0].Item.Name)

	var removed struct {
		Status string `json:"status"`
	}
	require.NoError(t, f.boot.Call(ctx, "removeItem", map[string]any{"playerId": 1, "slotIndex": 1, "quantity": 99}).Struct(ctx, &removed))
	assert.Equal(t, "ok", removed.Status)
	require.NoError(t, f.boot.Call(ctx, "removeItem", map[string]any{"playerId": 1, "slotIndex": 1, "quantity": 1}).Struct(ctx, &removed))
	assert.Equal(t, "notFound", removed.Status)
}

func TestInventory_TradeBothSides(t *testing.T) {
	f := serve(t, SchemaInventory)
	ctx := testCtx(t)
	f.svcs.Inventory.AddItem(1, inventory.Item{ItemID: 5, Name: "Gem"}, 3)

	started := f.boot.Call(ctx, "startTrade", map[string]any{"initiatorId": 1, "targetId": 2})
	mine := started.Cap("session")
	theirs := started.Cap("counterpart")

	var offer struct {
		Status string           `json:"status"`
		Slots  []inventory.Slot `json:"slots"`
	}
	require.NoError(t, mine.Call(ctx, "offerItems", map[string]any{"slotIndexes": []uint16{0}}).Struct(ctx, &offer))
	require.Len(t, offer.Slots, 1)

	var seen struct {
		Slots []inventory.Slot `json:"slots"`
	}
	require.NoError(t, theirs.Call(ctx, "viewOtherOffer", nil).Struct(ctx, &seen))
	require.Len(t, seen.Slots, 1)
	assert.Equal(t, "Gem", seen.Slots[0].Item.Name)

	var st tradeResp
	require.NoError(t, mine.Call(ctx, "confirm", nil).Struct(ctx, &st))
	assert.Equal(t, "invalidArgument", st.Status)
	assert.Equal(t, inventory.TradeProposing, st.State)

	require.NoError(t, mine.Call(ctx, "accept", nil).Struct(ctx, &st))
	assert.Equal(t, inventory.TradeProposing, st.State)
	require.NoError(t, theirs.Call(ctx, "accept", nil).Struct(ctx, &st))
	assert.Equal(t, inventory.TradeAccepted, st.State)

	require.NoError(t, theirs.Call(ctx, "confirm", nil).Struct(ctx, &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, inventory.TradeConfirmed, st.State)

	var state struct {
		State   inventory.TradeState `json:"state"`
		Side    string               `json:"side"`
		TradeID uint64               `json:"tradeId"`
	}
	require.NoError(t, theirs.Call(ctx, "getState", nil).Struct(ctx, &state))
	assert.Equal(t, inventory.TradeConfirmed, state.State)
	assert.Equal(t, "target", state.Side)
	assert.NotZero(t, state.TradeID)
}

func TestInventory_CancelIsTerminal(t *testing.T) {
	f := serve(t, SchemaInventory)
	ctx := testCtx(t)

	session := f.boot.Call(ctx, "startTrade", map[string]any{"initiatorId": 1, "targetId": 2}).Cap("session")
	var st tradeResp
	require.NoError(t, session.Call(ctx, "cancel", nil).Struct(ctx, &st))
	assert.Equal(t, inventory.TradeCancelled, st.State)
	require.NoError(t, session.Call(ctx, "accept", nil).Struct(ctx, &st))
	assert.Equal(t, inventory.TradeCancelled, st.State)
	require.NoError(t, session.Call(ctx, "getState", nil).Struct(ctx, &st))
	assert.Equal(t, inventory.TradeCancelled, st.State)
}

func TestMatchmaking_QueueStats(t *testing.T) {
	f := serve(t, SchemaMatchmaking)
	ctx := testCtx(t)

	var ticket struct {
		Ticket matchmaking.Ticket `json:"ticket"`
	}
	require.NoError(t, f.boot.Call(ctx, "enqueue", map[string]any{"player": alice, "mode": "duel"}).Struct(ctx, &ticket))
	assert.Equal(t, uint64(1), ticket.Ticket.TicketID)
	assert.Equal(t, uint32(30), ticket.Ticket.EstimatedWaitSecs)

	var stats struct {
		Status         string `json:"status"`
		PlayersInQueue uint32 `json:"playersInQueue"`
		AvgWaitSecs    uint32 `json:"avgWaitSecs"`
	}
	require.NoError(t, f.boot.Call(ctx, "getQueueStats", map[string]any{"mode": "duel"}).Struct(ctx, &stats))
	assert.Equal(t, uint32(1), stats.PlayersInQueue)
	assert.Equal(t, uint32(15), stats.AvgWaitSecs)

	var res struct {
		Status string `json:"status"`
	}
	require.NoError(t, f.boot.Call(ctx, "dequeue", map[string]any{"ticketId": 1}).Struct(ctx, &res))
	assert.Equal(t, "ok", res.Status)
	require.NoError(t, f.boot.Call(ctx, "dequeue", map[string]any{"ticketId": 1}).Struct(ctx, &res))
	assert.Equal(t, "notFound", res.Status)

	require.NoError(t, f.boot.Call(ctx, "getQueueStats", map[string]any{"mode": "duel"}).Struct(ctx, &stats))
	assert.Equal(t, uint32(0), stats.PlayersInQueue)
	assert.Equal(t, uint32(0), stats.AvgWaitSecs)
}

type matchStateResp struct {
	Status string                 `json:"status"`
	State  matchmaking.MatchState `json:"state"`
}

func TestMatchmaking_PipelinedControllerAndResultCache(t *testing.T) {
	f := serve(t, SchemaMatchmaking)
	ctx := testCtx(t)

	found := f.boot.Call(ctx, "findMatch", map[string]any{"player": alice, "mode": "arena3v3"})
	controller := found.Cap("controller")
	infoAns := controller.Call(ctx, "getInfo", nil)

	var info struct {
		Info matchmaking.MatchInfo `json:"info"`
	}
	require.NoError(t, infoAns.Struct(ctx, &info))
	assert.Equal(t, types.ModeArena3v3, info.Info.Mode)
	assert.Equal(t, matchmaking.MatchWaiting, info.Info.State)
	require.Len(t, info.Info.TeamB, 1)
	assert.Equal(t, matchmaking.BotOpponent, info.Info.TeamB[0])

	var match struct {
		MatchID uint64 `json:"matchId"`
	}
	require.NoError(t, found.Struct(ctx, &match))
	assert.Equal(t, info.Info.MatchID, match.MatchID)

	var st matchStateResp
	require.NoError(t, controller.Call(ctx, "reportResult", map[string]any{"result": map[string]any{"winningTeam": 1}}).Struct(ctx, &st))
	assert.Equal(t, "invalidArgument", st.Status)
	assert.Equal(t, matchmaking.MatchWaiting, st.State)

	var ready struct {
		AllReady bool `json:"allReady"`
	}
	require.NoError(t, controller.Call(ctx, "signalReady", map[string]any{"playerId": alice.ID}).Struct(ctx, &ready))
	assert.True(t, ready.AllReady)

	require.NoError(t, controller.Call(ctx, "reportResult", map[string]any{"result": map[string]any{"winningTeam": 1}}).Struct(ctx, &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, matchmaking.MatchCompleted, st.State)

	cached, err := f.cache.Get(ctx, game.ResultKey(match.MatchID))
	require.NoError(t, err)
	var reported matchmaking.MatchResult
	require.NoError(t, json.Unmarshal([]byte(cached), &reported))
	assert.Equal(t, uint8(1), reported.WinningTeam)
	assert.Equal(t, match.MatchID, reported.MatchID)

	require.NoError(t, controller.Call(ctx, "cancelMatch", nil).Struct(ctx, &st))
	assert.Equal(t, "invalidArgument", st.Status)
	assert.Equal(t, matchmaking.MatchCompleted, st.State)

	var synth struct {
		Result matchmaking.MatchResult `json:"result"`
	}
	require.NoError(t, f.boot.Call(ctx, "getMatchResult", map[string]any{"matchId": match.MatchID}).Struct(ctx, &synth))
	assert.Equal(t, uint8(0), synth.Result.WinningTeam)
	assert.Equal(t, uint32(300), synth.Result.DurationSecs)

	var missing struct {
		Status string `json:"status"`
	}
	require.NoError(t, f.boot.Call(ctx, "getMatchResult", map[string]any{"matchId": 999}).Struct(ctx, &missing))
	assert.Equal(t, "notFound", missing.Status)
}

func TestBadParamsIsTransportError(t *testing.T) {
	f := serve(t, SchemaGameWorld)
	ctx := testCtx(t)

	err := f.boot.Call(ctx, "getEntity", map[string]any{"id": "seven"}).Wait(ctx)
	assert.Error(t, err)
	err = f.boot.Call(ctx, "teleport", nil).Wait(ctx)
	assert.Error(t, err)
}

func TestPlayerIDOf(t *testing.T) {
	id := playerIDOf(json.RawMessage(`{"player":{"id":7},"mode":"duel"}`))
	require.NotNil(t, id)
	assert.Equal(t, uint64(7), *id)

	id = playerIDOf(json.RawMessage(`{"initiatorId":3,"targetId":4}`))
	require.NotNil(t, id)
	assert.Equal(t, uint64(3), *id)

	assert.Nil(t, playerIDOf(json.RawMessage(`{"name":"lobby"}`)))
	assert.Nil(t, playerIDOf(nil))
	assert.Nil(t, playerIDOf(json.RawMessage(`not json`)))
}
