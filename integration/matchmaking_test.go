package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	apiws "github.com/kasuganosora/gamecaps/api/ws"
	"github.com/kasuganosora/gamecaps/game/matchmaking"
	"github.com/kasuganosora/gamecaps/game/types"
	"github.com/kasuganosora/gamecaps/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.PlayerInfo{ID: 101, Name: "Alice", Faction: types.FactionAlliance, Level: 30}
	bob   = types.PlayerInfo{ID: 102, Name: "Bob", Faction: types.FactionHorde, Level: 28}
)

type statusResp struct {
	Status string `json:"status"`
}

func TestMatchmaking_PipelinedFindMatch(t *testing.T) {
	ts := NewTestServer(t, apiws.SchemaMatchmaking)
	client := ts.Dial(t)
	ctx := Ctx(t)

	// getInfo goes out before findMatch has answered.
	found := client.Bootstrap().Call(ctx, "findMatch", map[string]any{"player": alice, "mode": "arena3v3"})
	infoAns := found.Cap("controller").Call(ctx, "getInfo", nil)

	var info struct {
		Status string                `json:"status"`
		Info   matchmaking.MatchInfo `json:"info"`
	}
	require.NoError(t, infoAns.Struct(ctx, &info))
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, types.ModeArena3v3, info.Info.Mode)
	assert.Equal(t, matchmaking.MatchWaiting, info.Info.State)
	assert.Equal(t, []types.PlayerInfo{alice}, info.Info.TeamA)
	assert.Equal(t, []types.PlayerInfo{matchmaking.BotOpponent}, info.Info.TeamB)

	var match struct {
		MatchID uint64 `json:"matchId"`
	}
	require.NoError(t, found.Struct(ctx, &match))
	assert.Equal(t, info.Info.MatchID, match.MatchID)
}

func TestMatchmaking_QueueSequence(t *testing.T) {
	ts := NewTestServer(t, apiws.SchemaMatchmaking)
	boot := ts.Dial(t).Bootstrap()
	ctx := Ctx(t)

	type stats struct {
		PlayersInQueue uint32 `json:"playersInQueue"`
		AvgWaitSecs    uint32 `json:"avgWaitSecs"`
	}

	var ticket struct {
		Ticket matchmaking.Ticket `json:"ticket"`
	}
	require.NoError(t, boot.Call(ctx, "enqueue", map[string]any{"player": alice, "mode": "battleground"}).Struct(ctx, &ticket))
	require.NoError(t, boot.Call(ctx, "enqueue", map[string]any{"player": bob, "mode": "battleground"}).Wait(ctx))

	var s stats
	require.NoError(t, boot.Call(ctx, "getQueueStats", map[string]any{"mode": "battleground"}).Struct(ctx, &s))
	assert.Equal(t, stats{PlayersInQueue: 2, AvgWaitSecs: 15}, s)

	var res statusResp
	require.NoError(t, boot.Call(ctx, "dequeue", map[string]any{"ticketId": ticket.Ticket.TicketID}).Struct(ctx, &res))
	assert.Equal(t, "ok", res.Status)

	require.NoError(t, boot.Call(ctx, "getQueueStats", map[string]any{"mode": "battleground"}).Struct(ctx, &s))
	assert.Equal(t, stats{PlayersInQueue: 1, AvgWaitSecs: 15}, s)

	// Other modes are counted separately.
	require.NoError(t, boot.Call(ctx, "getQueueStats", map[string]any{"mode": "duel"}).Struct(ctx, &s))
	assert.Equal(t, stats{}, s)
}

func TestMatchmaking_ReportedResultVisibleToAdmin(t *testing.T) {
	ts := NewTestServer(t, apiws.SchemaMatchmaking)
	boot := ts.Dial(t).Bootstrap()
	ctx := Ctx(t)

	found := boot.Call(ctx, "findMatch", map[string]any{"player": alice, "mode": "duel"})
	controller := found.Cap("controller")
	var match struct {
		MatchID uint64 `json:"matchId"`
	}
	require.NoError(t, found.Struct(ctx, &match))

	resultPath := fmt.Sprintf("/admin/matches/%d/result", match.MatchID)
	resp := ts.AdminGet(t, resultPath)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, controller.Call(ctx, "signalReady", map[string]any{"playerId": alice.ID}).Wait(ctx))
	var st struct {
		Status string                 `json:"status"`
		State  matchmaking.MatchState `json:"state"`
	}
	require.NoError(t, controller.Call(ctx, "reportResult", map[string]any{
		"result": map[string]any{"winningTeam": 1, "duration": 42},
	}).Struct(ctx, &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, matchmaking.MatchCompleted, st.State)

	var reported matchmaking.MatchResult
	ReadJSON(t, ts.AdminGet(t, resultPath), &reported)
	assert.Equal(t, match.MatchID, reported.MatchID)
	assert.Equal(t, uint8(1), reported.WinningTeam)
	assert.Equal(t, uint32(42), reported.DurationSecs)

	var listed struct {
		Matches []matchmaking.MatchInfo `json:"matches"`
		Count   int                     `json:"count"`
	}
	ReadJSON(t, ts.AdminGet(t, "/admin/matches"), &listed)
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, matchmaking.MatchCompleted, listed.Matches[0].State)

	// findMatch and reportResult are audited; signalReady is not.
	assert.Eventually(t, func() bool {
		rows, err := ts.Audit.Recent(ctx, 10)
		return err == nil && len(rows) == 2
	}, 2*time.Second, 10*time.Millisecond)
	var audited struct {
		Entries []model.AuditLog `json:"entries"`
	}
	ReadJSON(t, ts.AdminGet(t, "/admin/audit"), &audited)
	actions := make([]string, 0, len(audited.Entries))
	for _, e := range audited.Entries {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{"findMatch", "reportResult"}, actions)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := NewTestServer(t, apiws.SchemaMatchmaking)
	boot := ts.Dial(t).Bootstrap()
	ctx := Ctx(t)

	require.NoError(t, boot.Call(ctx, "getQueueStats", map[string]any{"mode": "duel"}).Wait(ctx))

	assert.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body),
			`gamecaps_rpc_calls_total{interface="MatchmakingService",method="getQueueStats",status="ok"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
}
