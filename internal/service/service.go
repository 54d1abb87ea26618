// Package service assembles the ingestion core into one explicitly
// constructed instance: connection manager feeding the dispatcher,
// dispatcher feeding the entity store, store mutations batched by the
// update scheduler, and the performance monitor tapping counters along
// the way. Views receive the instance by injection and subscribe
// through it; there is no package-level singleton.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/motordiag/faultstream/internal/config"
	"github.com/motordiag/faultstream/internal/connection"
	"github.com/motordiag/faultstream/internal/dispatch"
	"github.com/motordiag/faultstream/internal/schedule"
	"github.com/motordiag/faultstream/internal/store"
	"github.com/motordiag/faultstream/internal/telemetry"
	"github.com/motordiag/faultstream/internal/wire"
)

var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNotStarted     = errors.New("service not started")
)

// Service is the ingestion core. Lifecycle: New → Start → Connect …
// Disconnect → Stop.
type Service struct {
	cfg    *config.MonitorConfig
	logger *slog.Logger

	monitor    *telemetry.Monitor
	dispatcher *dispatch.Dispatcher
	manager    *connection.Manager
	store      *store.Store
	scheduler  *schedule.Scheduler
	notices    *schedule.NoticeThrottle

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	ingestSub dispatch.Subscription
	wg        sync.WaitGroup
}

// New wires the ingestion pipeline from configuration. Nothing runs
// until Start.
func New(cfg *config.MonitorConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	monitor := telemetry.New(time.Second, logger.With("component", "telemetry"))

	dispatcher := dispatch.New(cfg.Stream.BufferSize, cfg.Stream.MaxBufferSize,
		logger.With("component", "dispatch"))
	monitor.SetBufferSource(dispatcher.QueueDepth)

	manager := connection.NewManager(connection.ManagerConfig{
		URL:               cfg.Stream.URL,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Stream.HeartbeatTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		BufferSize:        cfg.Stream.BufferSize,
		Backoff:           connection.FixedDelay{Wait: cfg.Stream.ReconnectDelay},
	}, dispatcher, monitor, logger.With("component", "connection"))

	st := store.New(store.Config{
		HistoryCapacity: cfg.Store.HistoryCapacity,
		MaxEntities:     cfg.Store.MaxEntities,
		MaxEntityAge:    cfg.Store.MaxEntityAge,
		SweepInterval:   cfg.Store.SweepInterval,
	}, logger.With("component", "store"))

	scheduler := schedule.New(schedule.Config{
		Interval: cfg.Scheduler.Interval,
	}, logger.With("component", "schedule"))

	notices := schedule.NewNoticeThrottle(schedule.NoticeConfig{
		Window:    cfg.Scheduler.NoticeWindow,
		AckWindow: cfg.Scheduler.AckWindow,
	}, logger.With("component", "schedule"))

	return &Service{
		cfg:        cfg,
		logger:     logger,
		monitor:    monitor,
		dispatcher: dispatcher,
		manager:    manager,
		store:      st,
		scheduler:  scheduler,
		notices:    notices,
	}
}

// Start launches the pipeline goroutines. It does not dial the stream;
// call Connect for that.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.ingestSub = s.dispatcher.On(dispatch.KindAny, s.ingest)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.store.RunSweeper(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.monitor.Run(runCtx)
	}()

	s.logger.Info("ingestion service started",
		"instance", s.cfg.Instance.ID,
		"history_capacity", s.cfg.Store.HistoryCapacity,
		"max_entities", s.cfg.Store.MaxEntities,
	)
	return nil
}

// Stop disconnects the stream and shuts the pipeline down, flushing
// any pending update batch on the way out.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	cancel := s.cancel
	ingestSub := s.ingestSub
	s.mu.Unlock()

	s.manager.Disconnect()
	ingestSub.Cancel()
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("service shutdown: %w", ctx.Err())
	}

	s.dispatcher.Close()
	s.scheduler.Stop()
	s.notices.Stop()

	s.logger.Info("ingestion service stopped")
	return nil
}

// ingest applies one diagnostic event to the store and fans the
// side effects out: a batched update tick, telemetry, and an alert
// notice when the fault score crosses the configured threshold.
func (s *Service) ingest(ev *wire.DiagnosticEvent) {
	if err := s.store.Upsert(ev); err != nil {
		if errors.Is(err, store.ErrStaleEvent) {
			s.monitor.FrameDropped(telemetry.DropStale)
		}
		return
	}

	s.monitor.FrameProcessed(time.Since(ev.ReceivedAt))
	s.scheduler.Notify(ev.EntityID)

	if ev.Score >= s.cfg.Alerts.ScoreThreshold {
		s.notices.Push(schedule.SeverityWarning,
			fmt.Sprintf("%s fault detected on %s", ev.Fault, ev.EntityID))
	}
}

// Connect dials the fault stream.
func (s *Service) Connect(ctx context.Context) error {
	return s.manager.Connect(ctx)
}

// Disconnect tears the stream connection down without stopping the
// pipeline; Connect may be called again.
func (s *Service) Disconnect() {
	s.manager.Disconnect()
}

// On subscribes a view handler for events of the given kind. Cancel
// the returned subscription to stop observing.
func (s *Service) On(kind dispatch.Kind, fn dispatch.Handler) dispatch.Subscription {
	return s.dispatcher.On(kind, fn)
}

// Entity returns a copy of one entity's record.
func (s *Service) Entity(id string) (store.Record, bool) {
	return s.store.Get(id)
}

// Entities returns copies of all entity records.
func (s *Service) Entities() map[string]store.Record {
	return s.store.All()
}

// Performance returns a point-in-time telemetry snapshot.
func (s *Service) Performance() telemetry.Snapshot {
	return s.monitor.Sample()
}

// Connection returns the connection state snapshot.
func (s *Service) Connection() connection.Snapshot {
	return s.manager.Snapshot()
}

// ConnectionDuration reports how long the current session has been up.
func (s *Service) ConnectionDuration() time.Duration {
	return s.manager.ConnectionDuration()
}

// Events returns the connection lifecycle event channel.
func (s *Service) Events() <-chan connection.LifecycleEvent {
	return s.manager.Events()
}

// Updates returns the batched entity-update channel: each batch holds
// the distinct entities mutated since the previous tick.
func (s *Service) Updates() <-chan []string {
	return s.scheduler.Updates()
}

// Notices returns the throttled alert channel.
func (s *Service) Notices() <-chan schedule.Notice {
	return s.notices.Notices()
}

// PushAck publishes an operator acknowledgement notice.
func (s *Service) PushAck(message string) {
	s.notices.PushAck(message)
}

// RegisterMetrics attaches the telemetry collectors to a Prometheus
// registry.
func (s *Service) RegisterMetrics(reg prometheus.Registerer) error {
	return s.monitor.Register(reg)
}
