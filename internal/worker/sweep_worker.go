package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

// Sweeper runs one unresolved-ticket sweep.
type Sweeper interface {
	Run(ctx context.Context) (service.SweepResult, error)
}

// SweepWorker triggers the sweep on a cron schedule. Overlapping runs are skipped.
type SweepWorker struct {
	mu      sync.Mutex
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger
	timeout time.Duration
	baseCtx context.Context
}

// NewSweepWorker validates the schedule and registers the job.
// Schedule accepts five-field cron expressions and descriptors like @daily.
func NewSweepWorker(sweeper Sweeper, schedule string, timeout time.Duration, logger *zap.Logger) (*SweepWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cronLogger{logger: logger}
	w := &SweepWorker{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
		baseCtx: context.Background(),
	}
	if _, err := w.cron.AddFunc(schedule, w.tick); err != nil {
		return nil, fmt.Errorf("sweep worker: invalid schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs the scheduler until ctx is cancelled, then waits for a running sweep to finish.
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	w.baseCtx = ctx
	w.mu.Unlock()

	w.cron.Start()
	w.logger.Info("sweep worker started")

	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.logger.Info("sweep worker stopped")
	return ctx.Err()
}

func (w *SweepWorker) tick() {
	w.mu.Lock()
	ctx := w.baseCtx
	w.mu.Unlock()
	w.RunOnce(ctx)
}

// RunOnce performs a single sweep and logs the outcome.
func (w *SweepWorker) RunOnce(ctx context.Context) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	started := time.Now()
	result, err := w.sweeper.Run(ctx)
	if err != nil {
		w.logger.Error("unresolved ticket sweep failed", zap.Error(err))
		return
	}
	w.logger.Info("unresolved ticket sweep",
		zap.Int("reminded", result.Reminded),
		zap.Duration("took", time.Since(started)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
