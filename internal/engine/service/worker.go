package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/pkg/common"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/telegram"
	"golang-prediction-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// WorkerService drains the engine's task streams. One method per stream,
// each pulled in a loop by the consumer; retry recovery runs on tickers.
type WorkerService interface {
	ProcessSweepTask(ctx context.Context)
	ProcessDetectionTask(ctx context.Context)
	ProcessReplayTask(ctx context.Context)
	ProcessSweepRetries(ctx context.Context)
	ProcessReplayRetries(ctx context.Context)
}

// NewWorkerService creates a new stream worker.
func NewWorkerService(
	cfg *config.Config,
	log *logger.Logger,
	redisClient *redis.Client,
	processor SignalProcessor,
	replays ReplayService,
	notifier telegram.Notifier,
) WorkerService {
	return &workerService{
		cfg:         cfg,
		log:         log,
		redisClient: redisClient,
		processor:   processor,
		replays:     replays,
		notifier:    notifier,
	}
}

type workerService struct {
	cfg         *config.Config
	log         *logger.Logger
	redisClient *redis.Client
	processor   SignalProcessor
	replays     ReplayService
	notifier    telegram.Notifier
}

// readOne blocks briefly for one new message on the stream. A nil message
// means the stream was idle.
func (s *workerService) readOne(ctx context.Context, stream string) *redis.XMessage {
	streams, err := s.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    2 * time.Second,
	}).Result()
	if err != nil {
		if err == context.Canceled || err == redis.Nil {
			return nil
		}
		s.log.Error("Failed to read from stream",
			logger.ErrorField(err), logger.StringField("stream", stream))
		return nil
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil
	}
	return &streams[0].Messages[0]
}

func (s *workerService) ackNDel(ctx context.Context, stream, messageID string) error {
	if err := s.redisClient.XAck(ctx, stream, common.RedisStreamGroup, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	if err := s.redisClient.XDel(ctx, stream, messageID).Err(); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func payloadOf(msg *redis.XMessage) (string, bool) {
	data, ok := msg.Values["payload"].(string)
	return data, ok
}

// ProcessSweepTask dequeues one sweep task and runs a claim-based batch.
func (s *workerService) ProcessSweepTask(ctx context.Context) {
	msg := s.readOne(ctx, common.RedisStreamSignalSweep)
	if msg == nil {
		return
	}
	data, ok := payloadOf(msg)
	if !ok {
		s.log.Error("field 'payload' not found in sweep message", logger.StringField("message_id", msg.ID))
		return
	}
	var task dto.StreamDataSignalSweep
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		s.log.Error("Failed to unmarshal sweep task", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
		return
	}

	if _, err := s.processor.ProcessBatch(ctx, task.UniverseID, task.TargetIDs, task.BatchSize, task.WorkerID); err != nil {
		s.log.Error("Sweep task failed",
			logger.ErrorField(err), logger.StringField("universe_id", task.UniverseID))
		return
	}
	if err := s.ackNDel(ctx, common.RedisStreamSignalSweep, msg.ID); err != nil {
		s.log.Error("Failed to finish sweep message", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
	}
}

// ProcessDetectionTask dequeues one detection task and pulls its feeds.
func (s *workerService) ProcessDetectionTask(ctx context.Context) {
	msg := s.readOne(ctx, common.RedisStreamSignalDetection)
	if msg == nil {
		return
	}
	data, ok := payloadOf(msg)
	if !ok {
		s.log.Error("field 'payload' not found in detection message", logger.StringField("message_id", msg.ID))
		return
	}
	var task dto.StreamDataDetection
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		s.log.Error("Failed to unmarshal detection task", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
		return
	}

	if _, err := s.processor.DetectFromFeeds(ctx, task.Targets); err != nil {
		s.log.Error("Detection task failed",
			logger.ErrorField(err), logger.StringField("universe_id", task.UniverseID))
		return
	}
	if err := s.ackNDel(ctx, common.RedisStreamSignalDetection, msg.ID); err != nil {
		s.log.Error("Failed to finish detection message", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
	}
}

// ProcessReplayTask dequeues one replay task and executes the run.
func (s *workerService) ProcessReplayTask(ctx context.Context) {
	msg := s.readOne(ctx, common.RedisStreamReplayRun)
	if msg == nil {
		return
	}
	data, ok := payloadOf(msg)
	if !ok {
		s.log.Error("field 'payload' not found in replay message", logger.StringField("message_id", msg.ID))
		return
	}
	var task dto.StreamDataReplay
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		s.log.Error("Failed to unmarshal replay task", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
		return
	}

	if _, err := s.replays.Run(ctx, task.ReplayRunID); err != nil {
		s.log.Error("Replay task failed",
			logger.ErrorField(err), logger.Field("replay_run_id", task.ReplayRunID))
		return
	}
	if err := s.ackNDel(ctx, common.RedisStreamReplayRun, msg.ID); err != nil {
		s.log.Error("Failed to finish replay message", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
	}
}

// ProcessSweepRetries reclaims sweep messages whose consumer went quiet.
func (s *workerService) ProcessSweepRetries(ctx context.Context) {
	s.processRetries(ctx, common.RedisStreamSignalSweep, func(ctx context.Context, data string) error {
		var task dto.StreamDataSignalSweep
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			return err
		}
		_, err := s.processor.ProcessBatch(ctx, task.UniverseID, task.TargetIDs, task.BatchSize, task.WorkerID)
		return err
	})
}

// ProcessReplayRetries reclaims replay messages whose consumer went quiet.
func (s *workerService) ProcessReplayRetries(ctx context.Context) {
	s.processRetries(ctx, common.RedisStreamReplayRun, func(ctx context.Context, data string) error {
		var task dto.StreamDataReplay
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			return err
		}
		_, err := s.replays.Run(ctx, task.ReplayRunID)
		return err
	})
}

// processRetries claims one stalled message and re-runs it. Past the retry
// cap the message is dropped and the operator alerted rather than poisoning
// the stream.
func (s *workerService) processRetries(ctx context.Context, stream string, handle func(ctx context.Context, data string) error) {
	msgs, _, err := s.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer + "-retry",
		MinIdle:  s.cfg.Engine.StreamMaxIdleDuration,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil {
		s.log.Error("Failed to claim task on retry", logger.ErrorField(err), logger.StringField("stream", stream))
		return
	}
	if len(msgs) == 0 {
		return
	}
	msg := msgs[0]

	pendingInfo, err := s.redisClient.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  common.RedisStreamGroup,
		Start:  msg.ID,
		End:    msg.ID,
		Count:  1,
	}).Result()
	if err != nil {
		s.log.Error("Failed to get pending info", logger.ErrorField(err), logger.StringField("stream", stream))
		return
	}
	if len(pendingInfo) == 0 {
		s.log.Warn("pending msg not found, but exists on xautoclaim",
			logger.StringField("stream", stream), logger.StringField("message_id", msg.ID))
		return
	}

	data, ok := payloadOf(&msg)
	if !ok {
		s.log.Error("field 'payload' not found in retried message", logger.StringField("message_id", msg.ID))
		if err := s.ackNDel(ctx, stream, msg.ID); err != nil {
			s.log.Error("Failed to drop malformed message", logger.ErrorField(err))
		}
		return
	}

	if pendingInfo[0].RetryCount >= int64(s.cfg.Engine.StreamMaxRetry) {
		s.log.Error("pending msg retry count exceeded",
			logger.StringField("stream", stream),
			logger.StringField("message_id", msg.ID),
			logger.IntField("retry_count", int(pendingInfo[0].RetryCount)),
			logger.IntField("max_retry", s.cfg.Engine.StreamMaxRetry))
		if s.notifier != nil {
			alert := telegram.FormatErrorAlertMessage(utils.TimeNowUTC(), "retry_exceeded",
				fmt.Sprintf("task on stream %s exceeded %d retries", stream, s.cfg.Engine.StreamMaxRetry), data)
			if err := s.notifier.SendMessage(alert); err != nil {
				s.log.Error("Failed to send retry-exceeded alert", logger.ErrorField(err))
			}
		}
		if err := s.ackNDel(ctx, stream, msg.ID); err != nil {
			s.log.Error("Failed to drop exhausted message", logger.ErrorField(err))
		}
		return
	}

	if err := handle(ctx, data); err != nil {
		s.log.Error("Retried task failed", logger.ErrorField(err),
			logger.StringField("stream", stream), logger.StringField("message_id", msg.ID))
		return
	}
	if err := s.ackNDel(ctx, stream, msg.ID); err != nil {
		s.log.Error("Failed to finish retried message", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
	}
}
