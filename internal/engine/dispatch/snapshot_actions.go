package dispatch

import (
	"context"

	"golang-prediction-engine/internal/engine/service"
)

// RegisterSnapshotActions binds the lineage read actions.
func RegisterSnapshotActions(d *Dispatcher, snapshots service.SnapshotService) {
	d.Register("get_snapshot", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		predictionID, err := requireID(params, "predictionId")
		if err != nil {
			return failFromParam(err)
		}
		snapshot, err := snapshots.Get(ctx, predictionID)
		if err != nil {
			return failFromError("get_snapshot", err)
		}
		return OK(snapshot)
	})

	d.Register("deep_dive_snapshot", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		predictionID, err := requireID(params, "predictionId")
		if err != nil {
			return failFromParam(err)
		}
		result, err := snapshots.DeepDive(ctx, predictionID)
		if err != nil {
			return failFromError("deep_dive_snapshot", err)
		}
		return OK(result)
	})

	d.Register("compare_snapshots", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		ids, err := requireIDList(params, "predictionIds")
		if err != nil {
			return failFromParam(err)
		}
		if len(ids) < 2 || len(ids) > 10 {
			return Fail("INVALID_PREDICTIONIDS", "compare takes between 2 and 10 prediction ids")
		}
		result, err := snapshots.Compare(ctx, ids)
		if err != nil {
			return failFromError("compare_snapshots", err)
		}
		return OK(result)
	})
}
