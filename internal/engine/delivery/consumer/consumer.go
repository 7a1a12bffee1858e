package consumer

import (
	"context"
	"sync"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/pkg/common"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisConsumer manages the consumption of tasks from the engine streams.
type RedisConsumer struct {
	cfg         *config.Config
	redisClient *redis.Client
	worker      service.WorkerService
	logger      *logger.Logger
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	worker service.WorkerService,
	log *logger.Logger,
) *RedisConsumer {
	return &RedisConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		worker:      worker,
		logger:      log,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the consumer's task processing loops.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Redis consumer started")
	c.RegisterStreamHandler(ctx, c.worker.ProcessSweepTask, common.RedisStreamSignalSweep, c.cfg.Engine.StreamReadTimeout)
	c.RegisterStreamHandler(ctx, c.worker.ProcessDetectionTask, common.RedisStreamSignalDetection, c.cfg.Engine.StreamReadTimeout)
	c.RegisterStreamHandler(ctx, c.worker.ProcessReplayTask, common.RedisStreamReplayRun, c.cfg.Engine.StreamReadTimeout)

	c.RegisterTickerHandler(ctx, c.worker.ProcessSweepRetries, c.cfg.Engine.StreamRetryInterval, c.cfg.Engine.StreamMaxIdleDuration, common.RedisStreamSignalSweep+"-retry")
	c.RegisterTickerHandler(ctx, c.worker.ProcessReplayRetries, c.cfg.Engine.StreamRetryInterval, c.cfg.Engine.StreamMaxIdleDuration, common.RedisStreamReplayRun+"-retry")
}

// RegisterStreamHandler pulls a stream in a loop until shutdown.
func (c *RedisConsumer) RegisterStreamHandler(ctx context.Context, fn func(ctx context.Context), streamName string, timeout time.Duration) {
	c.logger.Info("Registering stream handler", logger.StringField("stream", streamName))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Redis consumer stopping due to context cancellation")
				return
			case <-c.stopChan:
				c.logger.Info("Redis consumer stopping")
				return
			default:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			}
		}
	})
}

// RegisterTickerHandler runs fn on an interval until shutdown.
func (c *RedisConsumer) RegisterTickerHandler(ctx context.Context, fn func(ctx context.Context), interval time.Duration, timeout time.Duration, name string) {
	c.logger.Info("Registering ticker handler",
		logger.StringField("name", name),
		logger.Field("interval", interval),
		logger.Field("timeout", timeout))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			case <-ctx.Done():
				c.logger.Info("Ticker handler stopping due to context cancellation", logger.StringField("name", name))
				return
			case <-c.stopChan:
				c.logger.Info("Ticker handler stopping", logger.StringField("name", name))
				return
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Redis consumer stopped")
}
