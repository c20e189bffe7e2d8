// Package matchmaking implements the ticket queue and the match lifecycle.
//
// Matching is deliberately trivial: FindMatch pairs the caller with a fixed
// bot opponent and MatchResult reports fixed per-player stats.
package matchmaking

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/gamecaps/game/types"
	"go.uber.org/zap"
)

const (
	estimatedWaitSecs = 30
	avgWaitSecs       = 15
)

// BotOpponent fills team B of every match.
var BotOpponent = types.PlayerInfo{ID: 9999, Name: "BotOpponent", Faction: types.FactionPirates, Level: 50}

// Ticket is a queued player.
type Ticket struct {
	TicketID          uint64           `json:"ticketId"`
	Player            types.PlayerInfo `json:"player"`
	Mode              types.GameMode   `json:"mode"`
	EnqueuedAt        int64            `json:"enqueuedAt"`
	EstimatedWaitSecs uint32           `json:"estimatedWaitSecs"`
}

type QueueStats struct {
	PlayersInQueue uint32 `json:"playersInQueue"`
	AvgWaitSecs    uint32 `json:"avgWaitSecs"`
}

// PlayerStats is one roster entry of a match result.
type PlayerStats struct {
	Player  types.PlayerInfo `json:"player"`
	Kills   uint32           `json:"kills"`
	Deaths  uint32           `json:"deaths"`
	Assists uint32           `json:"assists"`
	Score   uint32           `json:"score"`
}

type MatchResult struct {
	MatchID      uint64        `json:"matchId"`
	WinningTeam  uint8         `json:"winningTeam"`
	DurationSecs uint32        `json:"duration"`
	PlayerStats  []PlayerStats `json:"playerStats"`
}

// Service holds the ticket queue and every match created by FindMatch.
type Service struct {
	mu           sync.Mutex
	tickets      map[uint64]Ticket
	matches      map[uint64]*Match
	nextTicketID uint64
	nextMatchID  uint64
	onReport     func(MatchResult)
	logger       *zap.Logger
}

// NewService creates an empty matchmaking service.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		tickets:      make(map[uint64]Ticket),
		matches:      make(map[uint64]*Match),
		nextTicketID: 1,
		nextMatchID:  1,
		logger:       logger,
	}
}

// OnReport registers fn to receive every result accepted by ReportResult.
// It must be called before any match is created.
func (s *Service) OnReport(fn func(MatchResult)) { s.onReport = fn }

// Enqueue adds player to the queue for mode.
func (s *Service) Enqueue(player types.PlayerInfo, mode types.GameMode) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Ticket{
		TicketID:          s.nextTicketID,
		Player:            player,
		Mode:              mode,
		EnqueuedAt:        types.BaseTimestamp,
		EstimatedWaitSecs: estimatedWaitSecs,
	}
	s.nextTicketID++
	s.tickets[t.TicketID] = t
	s.logger.Debug("ticket enqueued",
		zap.Uint64("ticket_id", t.TicketID), zap.Uint64("player_id", player.ID), zap.Stringer("mode", mode))
	return t
}

// Dequeue removes a ticket.
func (s *Service) Dequeue(ticketID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticketID]; !ok {
		return fmt.Errorf("ticket %d: %w", ticketID, types.ErrNotFound)
	}
	delete(s.tickets, ticketID)
	return nil
}

// QueueStats counts the tickets queued for mode.
func (s *Service) QueueStats(mode types.GameMode) QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st QueueStats
	for _, t := range s.tickets {
		if t.Mode == mode {
			st.PlayersInQueue++
		}
	}
	if st.PlayersInQueue > 0 {
		st.AvgWaitSecs = avgWaitSecs
	}
	return st
}

// FindMatch creates a waiting 1v1 match of player against BotOpponent.
func (s *Service) FindMatch(player types.PlayerInfo, mode types.GameMode) *Match {
	s.mu.Lock()
	m := &Match{
		id:        s.nextMatchID,
		mode:      mode,
		state:     MatchWaiting,
		teamA:     []types.PlayerInfo{player},
		teamB:     []types.PlayerInfo{BotOpponent},
		createdAt: types.BaseTimestamp,
		readySet:  make(map[uint64]bool),
		onReport:  s.onReport,
		logger:    s.logger,
	}
	s.nextMatchID++
	s.matches[m.id] = m
	s.mu.Unlock()

	s.logger.Info("match created",
		zap.Uint64("match_id", m.id), zap.Uint64("player_id", player.ID), zap.Stringer("mode", mode))
	return m
}

// MatchResult returns the synthesized result of a match. Team A always wins;
// whatever ReportResult recorded is not consulted.
func (s *Service) MatchResult(matchID uint64) (MatchResult, error) {
	m, err := s.match(matchID)
	if err != nil {
		return MatchResult{}, err
	}
	info := m.Info()
	res := MatchResult{MatchID: matchID, WinningTeam: 0, DurationSecs: 300}
	for _, p := range info.TeamA {
		res.PlayerStats = append(res.PlayerStats, PlayerStats{Player: p, Kills: 5, Deaths: 2, Assists: 3, Score: 100})
	}
	for _, p := range info.TeamB {
		res.PlayerStats = append(res.PlayerStats, PlayerStats{Player: p, Kills: 2, Deaths: 5, Assists: 1, Score: 50})
	}
	return res, nil
}

// ReportedResult returns the result last accepted by the match controller.
func (s *Service) ReportedResult(matchID uint64) (MatchResult, bool, error) {
	m, err := s.match(matchID)
	if err != nil {
		return MatchResult{}, false, err
	}
	r, ok := m.reported()
	return r, ok, nil
}

// Matches returns a snapshot of every match, ordered by id.
func (s *Service) Matches() []MatchInfo {
	s.mu.Lock()
	ms := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		ms = append(ms, m)
	}
	s.mu.Unlock()

	out := make([]MatchInfo, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// Load reports the number of queued tickets and of matches that are neither
// completed nor cancelled.
func (s *Service) Load() (queued, live int) {
	s.mu.Lock()
	ms := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		ms = append(ms, m)
	}
	queued = len(s.tickets)
	s.mu.Unlock()

	for _, m := range ms {
		switch m.Info().State {
		case MatchCompleted, MatchCancelled:
		default:
			live++
		}
	}
	return queued, live
}

func (s *Service) match(id uint64) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %d: %w", id, types.ErrNotFound)
	}
	return m, nil
}
