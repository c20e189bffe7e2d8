package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/gamecaps/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	batchSize       = 100
	defaultInterval = 2 * time.Second
	// MaxRecent caps the rows returned by Recent.
	MaxRecent = 500
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID    string
	PlayerID   *uint64
	Interface  string
	Action     string
	Request    interface{}
	Response   interface{}
	Status     string
	Error      string
	RemoteAddr string
	DurationMs int
}

// Option configures a Service.
type Option func(*Service)

// WithFlushInterval overrides how often partial batches are written.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	interval time.Duration
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		db:       db,
		ch:       make(chan *model.AuditLog, 1024),
		stopCh:   make(chan struct{}),
		interval: defaultInterval,
		logger:   logger,
	}
	for _, o := range opts {
		o(svc)
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

func rawJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil
		}
		return datatypes.JSON(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Log enqueues an audit entry for async DB write. Entries logged after Stop
// are dropped.
func (svc *Service) Log(entry AuditEntry) {
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		PlayerID:   entry.PlayerID,
		Interface:  entry.Interface,
		Action:     entry.Action,
		Request:    rawJSON(entry.Request),
		Response:   rawJSON(entry.Response),
		Status:     entry.Status,
		Error:      entry.Error,
		RemoteAddr: entry.RemoteAddr,
		DurationMs: entry.DurationMs,
	}
	select {
	case <-svc.stopCh:
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Recent returns up to limit of the newest rows, newest first.
func (svc *Service) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	var rows []model.AuditLog
	err := svc.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err))
		}
		batch = make([]*model.AuditLog, 0, batchSize)
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
