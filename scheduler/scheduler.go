package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// TaskInfo describes a registered ticker for the admin stats endpoint.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     uint64        `json:"runs"`
	Panics   uint64        `json:"panics"`
	LastRun  time.Time     `json:"lastRun"`
}

// Scheduler runs named periodic background tasks such as the stats
// reporter. Runs of one task never overlap.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

type tickerEntry struct {
	name     string
	interval time.Duration
	stopCh   chan struct{}

	// guarded by Scheduler.mu
	runs    uint64
	panics  uint64
	lastRun time.Time
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced. Calls after Stop are
// ignored.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || interval <= 0 {
		return
	}

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		name:     name,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	s.tickers[name] = entry

	s.wg.Add(1)
	go s.loop(entry, fn)
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(entry *tickerEntry, fn TaskFn) {
	defer s.wg.Done()
	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(entry, fn)
		case <-entry.stopCh:
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) run(entry *tickerEntry, fn TaskFn) {
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.logger.Error("scheduler task panicked",
				zap.String("task", entry.name),
				zap.Any("recover", r))
		}
		s.mu.Lock()
		entry.runs++
		if panicked {
			entry.panics++
		}
		entry.lastRun = time.Now()
		s.mu.Unlock()
	}()
	fn()
}

// Remove stops and removes a ticker by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
}

// Stop stops all tasks and waits for any in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ListTickers returns the names of all registered ticker tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns a snapshot of every registered ticker, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tickers))
	for _, e := range s.tickers {
		out = append(out, TaskInfo{
			Name:     e.name,
			Interval: e.interval,
			Runs:     e.runs,
			Panics:   e.panics,
			LastRun:  e.lastRun,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
