package dispatch

import (
	"context"

	"golang-prediction-engine/internal/engine/service"
)

// RegisterEvaluationActions binds outcome resolution, scoring, and audited
// overrides.
func RegisterEvaluationActions(d *Dispatcher, evaluations service.EvaluationService) {
	d.Register("resolve_prediction", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		predictionID, err := requireID(params, "predictionId")
		if err != nil {
			return failFromParam(err)
		}
		outcome, err := requireFloat(params, "outcomeValue")
		if err != nil {
			return failFromParam(err)
		}
		eval, err := evaluations.Resolve(ctx, predictionID, outcome)
		if err != nil {
			return failFromError("resolve_prediction", err)
		}
		return OK(eval)
	})

	d.Register("evaluate_prediction", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		predictionID, err := requireID(params, "predictionId")
		if err != nil {
			return failFromParam(err)
		}
		eval, err := evaluations.Evaluate(ctx, predictionID)
		if err != nil {
			return failFromError("evaluate_prediction", err)
		}
		return OK(eval)
	})

	d.Register("get_evaluation", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		predictionID, err := requireID(params, "predictionId")
		if err != nil {
			return failFromParam(err)
		}
		eval, err := evaluations.Get(ctx, predictionID)
		if err != nil {
			return failFromError("get_evaluation", err)
		}
		return OK(eval)
	})

	d.Register("override_evaluation", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		predictionID, err := requireID(params, "predictionId")
		if err != nil {
			return failFromParam(err)
		}
		field, err := requireString(params, "field")
		if err != nil {
			return failFromParam(err)
		}
		value, err := requireFloat(params, "value")
		if err != nil {
			return failFromParam(err)
		}
		reason, err := requireString(params, "reason")
		if err != nil {
			return failFromParam(err)
		}
		eval, err := evaluations.Override(ctx, predictionID, field, value, reason, exec.UserID)
		if err != nil {
			return failFromError("override_evaluation", err)
		}
		return OK(eval)
	})
}
