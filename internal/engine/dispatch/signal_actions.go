package dispatch

import (
	"context"
	"time"

	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/internal/entity"
)

// SignalCreator is the slice of the signal store the intake action needs.
type SignalCreator interface {
	Create(ctx context.Context, signal *entity.Signal) error
}

// RegisterSignalActions binds signal intake and the processing sweep.
func RegisterSignalActions(d *Dispatcher, signals SignalCreator, processor service.SignalProcessor) {
	d.Register("create_signal", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		targetID, err := requireString(params, "targetId")
		if err != nil {
			return failFromParam(err)
		}
		universeID, err := requireString(params, "universeId")
		if err != nil {
			return failFromParam(err)
		}
		content, err := requireString(params, "content")
		if err != nil {
			return failFromParam(err)
		}
		direction := entity.Direction(optionalString(params, "direction"))
		switch direction {
		case entity.DirectionBullish, entity.DirectionBearish, entity.DirectionNeutral:
		case "":
			direction = entity.DirectionNeutral
		default:
			return failFromParam(invalidParam("direction", "must be bullish, bearish, or neutral"))
		}

		signal := &entity.Signal{
			TargetID:    targetID,
			UniverseID:  universeID,
			SourceID:    optionalString(params, "sourceId"),
			Content:     content,
			Direction:   direction,
			DetectedAt:  time.Now(),
			Disposition: entity.SignalPending,
		}
		if err := signals.Create(ctx, signal); err != nil {
			return failFromError("create_signal", err)
		}
		return OK(signal)
	})

	d.Register("process_signal_batch", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		universeID, err := requireString(params, "universeId")
		if err != nil {
			return failFromParam(err)
		}
		batchSize := 0
		if n, ok := params["batchSize"].(float64); ok && n > 0 {
			batchSize = int(n)
		}
		result, err := processor.ProcessBatch(ctx, universeID,
			optionalStringList(params, "targetIds"), batchSize, optionalString(params, "workerId"))
		if err != nil {
			return failFromError("process_signal_batch", err)
		}
		return OK(result)
	})

	d.Register("release_stale_claims", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		released, err := processor.ReleaseStaleClaims(ctx)
		if err != nil {
			return failFromError("release_stale_claims", err)
		}
		return OK(map[string]interface{}{"released": released})
	})
}
