package worker

import (
	"context"
	"time"

	"keymarket/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StockSyncer rebuilds the cached stock counters
type StockSyncer interface {
	SyncStockToRedis(ctx context.Context) error
}

// StockSyncJob is a cron job refreshing the stock cache
type StockSyncJob struct {
	syncer  StockSyncer
	timeout time.Duration
	logger  *zap.Logger
}

func NewStockSyncJob(syncer StockSyncer) *StockSyncJob {
	return &StockSyncJob{
		syncer:  syncer,
		timeout: 30 * time.Second,
		logger:  util.GetLogger(),
	}
}

func (j *StockSyncJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.syncer.SyncStockToRedis(ctx); err != nil {
		j.logger.Warn("Stock sync failed", zap.Error(err))
	}
}

// Scheduler runs periodic maintenance jobs
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers the stock sync job under spec, e.g. "@every 1m"
func NewScheduler(spec string, syncer StockSyncer) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(spec, NewStockSyncJob(syncer)); err != nil {
		return nil, err
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
