package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/generic"
)

// DefaultRefreshSpec reloads the dashboard every five minutes.
const DefaultRefreshSpec = "@every 5m"

// RefreshRun records one scheduled LoadAll.
type RefreshRun struct {
	At       time.Time
	Duration time.Duration
	Seq      uint64
	Err      error
}

// RefreshScheduler calls LoadAll on a cron schedule. Overlapping runs are
// skipped; a manual RunNow may still race a scheduled run and the older one
// ends with generic.ErrStaleLoad.
type RefreshScheduler struct {
	controller *Controller
	spec       string
	logger     *zap.Logger
	timeout    time.Duration

	cron *cron.Cron
	mu   sync.Mutex
	last *RefreshRun
	runs int
}

// NewRefreshScheduler validates spec up front. An empty spec uses
// DefaultRefreshSpec.
func NewRefreshScheduler(c *Controller, spec string, logger *zap.Logger) (*RefreshScheduler, error) {
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return &RefreshScheduler{
		controller: c,
		spec:       spec,
		logger:     logger,
		timeout:    time.Minute,
	}, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cron != nil {
		return
	}
	logger := cronLogger{s: rs.logger.Sugar()}
	rs.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	// Parsed in the constructor.
	_, _ = rs.cron.AddFunc(rs.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
		defer cancel()
		rs.RunNow(ctx)
	})
	rs.cron.Start()
	rs.logger.Info("refresh scheduler started", zap.String("spec", rs.spec))
}

// Stop waits for a running refresh to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	rs.logger.Info("refresh scheduler stopped")
}

// RunNow performs one refresh and records it.
func (rs *RefreshScheduler) RunNow(ctx context.Context) RefreshRun {
	start := time.Now()
	err := rs.controller.LoadAll(ctx)
	run := RefreshRun{
		At:       start,
		Duration: time.Since(start),
		Seq:      rs.controller.State().Snapshot().Seq,
		Err:      err,
	}
	switch {
	case errors.Is(err, generic.ErrStaleLoad):
		rs.logger.Debug("refresh superseded", zap.Duration("duration", run.Duration))
	case err != nil:
		rs.logger.Warn("refresh failed", zap.Error(err))
	default:
		rs.logger.Info("refresh completed", zap.Uint64("seq", run.Seq), zap.Duration("duration", run.Duration))
	}

	rs.mu.Lock()
	rs.last = &run
	rs.runs++
	rs.mu.Unlock()
	return run
}

// LastRun returns the latest refresh, if any.
func (rs *RefreshScheduler) LastRun() (RefreshRun, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.last == nil {
		return RefreshRun{}, false
	}
	return *rs.last, true
}

func (rs *RefreshScheduler) Runs() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.runs
}
