package service

import (
	"context"
	"encoding/json"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/pkg/common"
	"golang-prediction-engine/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// SchedulerService enqueues the periodic pipeline tasks: feed detection and
// claim sweeps onto their streams, plus the in-process maintenance sweeps.
type SchedulerService interface {
	Start(ctx context.Context)
	EnqueueSweeps(ctx context.Context)
	EnqueueDetection(ctx context.Context)
}

// NewSchedulerService creates a new scheduler.
func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	redisClient *redis.Client,
	processor SignalProcessor,
) SchedulerService {
	return &schedulerService{
		cfg:         cfg,
		log:         log,
		redisClient: redisClient,
		processor:   processor,
		cronParser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

type schedulerService struct {
	cfg         *config.Config
	log         *logger.Logger
	redisClient *redis.Client
	processor   SignalProcessor
	cronParser  cron.Parser

	nextSweep     time.Time
	nextDetection time.Time
}

// Start runs the scheduling loop until the context ends. Cron expressions
// gate the stream enqueues; the maintenance sweeps run on plain intervals.
func (s *schedulerService) Start(ctx context.Context) {
	sweepSchedule, err := s.cronParser.Parse(s.cfg.Engine.SweepSchedule)
	if err != nil {
		s.log.Error("Invalid sweep schedule, sweeps disabled", logger.ErrorField(err))
	}
	detectionSchedule, err := s.cronParser.Parse(s.cfg.Engine.DetectionSchedule)
	if err != nil {
		s.log.Error("Invalid detection schedule, detection disabled", logger.ErrorField(err))
	}

	now := time.Now()
	if sweepSchedule != nil {
		s.nextSweep = sweepSchedule.Next(now)
	}
	if detectionSchedule != nil {
		s.nextDetection = detectionSchedule.Next(now)
	}

	ticker := time.NewTicker(time.Second * 30)
	defer ticker.Stop()
	staleClaimTicker := time.NewTicker(s.cfg.Engine.StaleClaimInterval)
	defer staleClaimTicker.Stop()
	expiryTicker := time.NewTicker(s.cfg.Engine.ExpirySweepInterval)
	defer expiryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler service stopping")
			return
		case now := <-ticker.C:
			if sweepSchedule != nil && !now.Before(s.nextSweep) {
				s.EnqueueSweeps(ctx)
				s.nextSweep = sweepSchedule.Next(now)
			}
			if detectionSchedule != nil && !now.Before(s.nextDetection) {
				s.EnqueueDetection(ctx)
				s.nextDetection = detectionSchedule.Next(now)
			}
		case <-staleClaimTicker.C:
			if _, err := s.processor.ReleaseStaleClaims(ctx); err != nil {
				s.log.Error("Failed to release stale claims", logger.ErrorField(err))
			}
		case <-expiryTicker.C:
			if _, _, err := s.processor.ExpireSignals(ctx); err != nil {
				s.log.Error("Expiry sweep failed", logger.ErrorField(err))
			}
		}
	}
}

// EnqueueSweeps publishes one sweep task per configured universe.
func (s *schedulerService) EnqueueSweeps(ctx context.Context) {
	for _, universeID := range s.cfg.Engine.Universes {
		payload, err := json.Marshal(dto.StreamDataSignalSweep{
			UniverseID: universeID,
			BatchSize:  s.cfg.Engine.BatchSize,
			WorkerID:   s.cfg.Engine.WorkerID,
		})
		if err != nil {
			s.log.Error("Failed to marshal sweep task", logger.ErrorField(err))
			continue
		}
		if err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
			Stream: common.RedisStreamSignalSweep,
			Values: map[string]interface{}{"payload": payload},
		}).Err(); err != nil {
			s.log.Error("Failed to enqueue sweep task",
				logger.ErrorField(err), logger.StringField("universe_id", universeID))
			continue
		}
		s.log.Debug("Sweep task enqueued", logger.StringField("universe_id", universeID))
	}
}

// EnqueueDetection publishes one detection task per universe, carrying the
// universe's configured feeds.
func (s *schedulerService) EnqueueDetection(ctx context.Context) {
	byUniverse := make(map[string][]dto.FeedTarget)
	for _, feed := range s.cfg.Engine.Feeds {
		byUniverse[feed.UniverseID] = append(byUniverse[feed.UniverseID], dto.FeedTarget{
			TargetID:   feed.TargetID,
			UniverseID: feed.UniverseID,
			SourceID:   feed.SourceID,
			FeedURL:    feed.FeedURL,
		})
	}

	for universeID, targets := range byUniverse {
		payload, err := json.Marshal(dto.StreamDataDetection{
			UniverseID: universeID,
			Targets:    targets,
		})
		if err != nil {
			s.log.Error("Failed to marshal detection task", logger.ErrorField(err))
			continue
		}
		if err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
			Stream: common.RedisStreamSignalDetection,
			Values: map[string]interface{}{"payload": payload},
		}).Err(); err != nil {
			s.log.Error("Failed to enqueue detection task",
				logger.ErrorField(err), logger.StringField("universe_id", universeID))
			continue
		}
		s.log.Debug("Detection task enqueued",
			logger.StringField("universe_id", universeID),
			logger.IntField("targets", len(targets)))
	}
}
