package dispatch

import (
	"context"
	"encoding/json"

	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/internal/entity"
)

// RegisterAnalystActions binds the analyst fork actions.
func RegisterAnalystActions(d *Dispatcher, analysts service.AnalystService) {
	d.Register("get_analyst_forks", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		analystID, err := requireID(params, "analystId")
		if err != nil {
			return failFromParam(err)
		}
		forks, err := analysts.GetForks(ctx, analystID)
		if err != nil {
			return failFromError("get_analyst_forks", err)
		}
		return OK(forks)
	})

	d.Register("update_analyst_context", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		analystID, err := requireID(params, "analystId")
		if err != nil {
			return failFromParam(err)
		}
		fork, err := requireString(params, "fork")
		if err != nil {
			return failFromParam(err)
		}
		changes := service.ContextChanges{CreatedBy: exec.UserID}
		if perspective := optionalString(params, "perspective"); perspective != "" {
			changes.Perspective = &perspective
		}
		if raw, ok := params["tierInstructions"]; ok && raw != nil {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return failFromParam(invalidParam("tierInstructions", "must be a JSON object"))
			}
			changes.TierInstructions = encoded
		}
		if weight, ok := params["defaultWeight"].(float64); ok {
			changes.DefaultWeight = &weight
		}
		version, err := analysts.UpdateContext(ctx, analystID, entity.ForkType(fork), changes)
		if err != nil {
			return failFromError("update_analyst_context", err)
		}
		return OK(version)
	})

	d.Register("create_analyst_mirror", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		analystID, err := requireID(params, "analystId")
		if err != nil {
			return failFromParam(err)
		}
		seed, err := analysts.CreateMirror(ctx, analystID)
		if err != nil {
			return failFromError("create_analyst_mirror", err)
		}
		return OK(seed)
	})

	d.Register("compare_fork_performance", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		analystID, err := requireID(params, "analystId")
		if err != nil {
			return failFromParam(err)
		}
		comparison, err := analysts.CompareForkPerformance(ctx, analystID)
		if err != nil {
			return failFromError("compare_fork_performance", err)
		}
		return OK(comparison)
	})

	d.Register("reconcile_forks", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		analystID, err := requireID(params, "analystId")
		if err != nil {
			return failFromParam(err)
		}
		winner, err := requireString(params, "winner")
		if err != nil {
			return failFromParam(err)
		}
		version, err := analysts.ReconcileForks(ctx, analystID, entity.ForkType(winner), exec.UserID)
		if err != nil {
			return failFromError("reconcile_forks", err)
		}
		return OK(version)
	})
}
