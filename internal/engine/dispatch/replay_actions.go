package dispatch

import (
	"context"

	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/internal/entity"
)

// RegisterReplayActions binds the historical replay lifecycle.
func RegisterReplayActions(d *Dispatcher, replays service.ReplayService) {
	d.Register("create_replay", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		universeID, err := requireString(params, "universeId")
		if err != nil {
			return failFromParam(err)
		}
		rollbackTo, err := requireTime(params, "rollbackTo")
		if err != nil {
			return failFromParam(err)
		}
		depth, err := requireString(params, "rollbackDepth")
		if err != nil {
			return failFromParam(err)
		}
		run, err := replays.Create(ctx, service.ReplayCreateRequest{
			UniverseID:    universeID,
			TargetIDs:     optionalStringList(params, "targetIds"),
			RollbackTo:    rollbackTo,
			RollbackDepth: entity.RollbackDepth(depth),
			CreatedBy:     exec.UserID,
		})
		if err != nil {
			return failFromError("create_replay", err)
		}
		return OK(run)
	})

	d.Register("get_replay", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		run, err := replays.Get(ctx, id)
		if err != nil {
			return failFromError("get_replay", err)
		}
		return OK(run)
	})

	d.Register("preview_replay", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		counts, err := replays.Preview(ctx, id)
		if err != nil {
			return failFromError("preview_replay", err)
		}
		return OK(counts)
	})

	d.Register("run_replay", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		results, err := replays.Run(ctx, id)
		if err != nil {
			return failFromError("run_replay", err)
		}
		return OK(results)
	})

	d.Register("get_replay_results", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		results, comparisons, err := replays.Results(ctx, id)
		if err != nil {
			return failFromError("get_replay_results", err)
		}
		return OK(map[string]interface{}{
			"results":     results,
			"comparisons": comparisons,
		})
	})

	d.Register("delete_replay", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		if err := replays.Delete(ctx, id); err != nil {
			return failFromError("delete_replay", err)
		}
		return OK(map[string]interface{}{"id": id, "deleted": true})
	})
}
