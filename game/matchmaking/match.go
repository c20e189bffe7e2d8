package matchmaking

import (
	"fmt"
	"sync"

	"github.com/kasuganosora/gamecaps/game/types"
	"go.uber.org/zap"
)

// MatchState is the lifecycle state of a match.
type MatchState uint8

const (
	MatchWaiting MatchState = iota
	MatchReady
	MatchInProgress
	MatchCompleted
	MatchCancelled
)

var matchStateEnum = types.Enum{Kind: "match state", Names: []string{"waiting", "ready", "inProgress", "completed", "cancelled"}}

func (s MatchState) String() string                { return matchStateEnum.Name(uint8(s)) }
func (s MatchState) MarshalText() ([]byte, error) { return matchStateEnum.Text(uint8(s)) }

func (s *MatchState) UnmarshalText(b []byte) error {
	v, err := matchStateEnum.Parse(b)
	if err != nil {
		return err
	}
	*s = MatchState(v)
	return nil
}

type MatchInfo struct {
	MatchID   uint64             `json:"matchId"`
	Mode      types.GameMode     `json:"mode"`
	State     MatchState         `json:"state"`
	TeamA     []types.PlayerInfo `json:"teamA"`
	TeamB     []types.PlayerInfo `json:"teamB"`
	CreatedAt int64              `json:"createdAt"`
	Ready     bool               `json:"ready"`
}

// Match is the record behind a match controller capability, which is its
// only mutator.
type Match struct {
	mu        sync.Mutex
	id        uint64
	mode      types.GameMode
	state     MatchState
	teamA     []types.PlayerInfo
	teamB     []types.PlayerInfo
	createdAt int64
	ready     bool
	readySet  map[uint64]bool
	result    *MatchResult
	onReport  func(MatchResult)
	logger    *zap.Logger
}

func (m *Match) ID() uint64 { return m.id }

// Info returns a snapshot of the match.
func (m *Match) Info() MatchInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MatchInfo{
		MatchID:   m.id,
		Mode:      m.mode,
		State:     m.state,
		TeamA:     append([]types.PlayerInfo(nil), m.teamA...),
		TeamB:     append([]types.PlayerInfo(nil), m.teamB...),
		CreatedAt: m.createdAt,
		Ready:     m.ready,
	}
}

// SignalReady records playerID as ready. The first signal moves a waiting
// match to ready; once every roster member has signalled the match moves
// to in progress. The reply is always allReady=true.
func (m *Match) SignalReady(playerID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	m.readySet[playerID] = true
	if m.state == MatchWaiting {
		m.state = MatchReady
	}
	if m.state == MatchReady && m.rosterReady() {
		m.state = MatchInProgress
		m.logger.Info("match started", zap.Uint64("match_id", m.id))
	}
	return true
}

func (m *Match) rosterReady() bool {
	for _, team := range [][]types.PlayerInfo{m.teamA, m.teamB} {
		for _, p := range team {
			if !m.readySet[p.ID] {
				return false
			}
		}
	}
	return true
}

// ReportResult completes a ready or running match.
func (m *Match) ReportResult(r MatchResult) (MatchState, error) {
	m.mu.Lock()
	if m.state != MatchReady && m.state != MatchInProgress {
		state := m.state
		m.mu.Unlock()
		return state, fmt.Errorf("report result for match %d in state %s: %w", m.id, state, types.ErrInvalidState)
	}
	m.state = MatchCompleted
	r.MatchID = m.id
	m.result = &r
	m.mu.Unlock()

	m.logger.Info("match completed", zap.Uint64("match_id", m.id), zap.Uint8("winning_team", r.WinningTeam))
	if m.onReport != nil {
		m.onReport(r)
	}
	return MatchCompleted, nil
}

// Cancel is legal only before the match has started.
func (m *Match) Cancel() (MatchState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MatchWaiting && m.state != MatchReady {
		return m.state, fmt.Errorf("cancel match %d in state %s: %w", m.id, m.state, types.ErrInvalidState)
	}
	m.state = MatchCancelled
	m.logger.Info("match cancelled", zap.Uint64("match_id", m.id))
	return m.state, nil
}

func (m *Match) reported() (MatchResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return MatchResult{}, false
	}
	return *m.result, true
}
