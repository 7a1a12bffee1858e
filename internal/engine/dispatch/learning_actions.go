package dispatch

import (
	"context"
	"encoding/json"

	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/internal/entity"
)

// scopeFromParams rebuilds the tagged scope from the flat request fields.
func scopeFromParams(params Params) (entity.Scope, error) {
	level, err := requireString(params, "scopeLevel")
	if err != nil {
		return entity.Scope{}, err
	}
	scope, err := entity.ScopeFromColumns(
		entity.ScopeLevel(level),
		optionalString(params, "domain"),
		optionalString(params, "universeId"),
		optionalString(params, "targetId"),
	)
	if err != nil {
		return entity.Scope{}, invalidParam("scopeLevel", err.Error())
	}
	return scope, nil
}

// RegisterLearningActions binds the learning lifecycle and promotion
// actions.
func RegisterLearningActions(d *Dispatcher, learnings service.LearningService, promotions service.PromotionService) {
	d.Register("list_promotion_candidates", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		scope, err := scopeFromParams(params)
		if err != nil {
			return failFromParam(err)
		}
		page, pageSize := pagination(params)
		candidates, total, err := learnings.ListCandidatesForPromotion(ctx, scope, page, pageSize)
		if err != nil {
			return failFromError("list_promotion_candidates", err)
		}
		return OKPaged(candidates, page, pageSize, total)
	})

	d.Register("create_learning", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		scope, err := scopeFromParams(params)
		if err != nil {
			return failFromParam(err)
		}
		title, err := requireString(params, "title")
		if err != nil {
			return failFromParam(err)
		}
		learningType, err := requireString(params, "learningType")
		if err != nil {
			return failFromParam(err)
		}
		level, domain, universeID, targetID := scope.Columns()
		learning := &entity.Learning{
			ScopeLevel:   level,
			Domain:       domain,
			UniverseID:   universeID,
			TargetID:     targetID,
			LearningType: entity.LearningType(learningType),
			Title:        title,
			Description:  optionalString(params, "description"),
			SourceType:   entity.LearningSource(optionalString(params, "sourceType")),
			IsTest:       optionalBool(params, "isTest"),
		}
		if raw, ok := params["config"]; ok && raw != nil {
			config, err := json.Marshal(raw)
			if err != nil {
				return failFromParam(invalidParam("config", "must be a JSON object"))
			}
			learning.Config = config
		}
		if err := learnings.Create(ctx, learning); err != nil {
			return failFromError("create_learning", err)
		}
		return OK(learning)
	})

	d.Register("get_learning", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		learning, err := learnings.Get(ctx, id)
		if err != nil {
			return failFromError("get_learning", err)
		}
		return OK(learning)
	})

	d.Register("supersede_learning", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		var changes service.SupersedeChanges
		if title := optionalString(params, "title"); title != "" {
			changes.Title = &title
		}
		if description := optionalString(params, "description"); description != "" {
			changes.Description = &description
		}
		if raw, ok := params["config"]; ok && raw != nil {
			config, err := json.Marshal(raw)
			if err != nil {
				return failFromParam(invalidParam("config", "must be a JSON object"))
			}
			changes.Config = config
		}
		replacement, err := learnings.Supersede(ctx, id, changes)
		if err != nil {
			return failFromError("supersede_learning", err)
		}
		return OK(replacement)
	})

	d.Register("record_learning_application", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		helpful := optionalBool(params, "helpful")
		if err := learnings.RecordApplication(ctx, id, helpful); err != nil {
			return failFromError("record_learning_application", err)
		}
		return OK(map[string]interface{}{"id": id, "helpful": helpful})
	})

	d.Register("validate_promotion", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		report, err := promotions.ValidateForPromotion(ctx, id)
		if err != nil {
			return failFromError("validate_promotion", err)
		}
		return OK(report)
	})

	d.Register("backtest_learning", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		windowDays := 0
		if n, ok := params["windowDays"].(float64); ok && n > 0 {
			windowDays = int(n)
		}
		result, err := promotions.Backtest(ctx, id, windowDays)
		if err != nil {
			return failFromError("backtest_learning", err)
		}
		return OK(result)
	})

	d.Register("promote_learning", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		req := service.PromotionRequest{
			LearningID: id,
			ActingUser: exec.UserID,
			OrgSlug:    exec.OrgSlug,
			Notes:      optionalString(params, "notes"),
		}
		if raw, ok := params["backtestResult"]; ok && raw != nil {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return failFromParam(invalidParam("backtestResult", "must be a JSON object"))
			}
			var result entity.BacktestResult
			if err := json.Unmarshal(encoded, &result); err != nil {
				return failFromParam(invalidParam("backtestResult", "does not match the backtest shape"))
			}
			req.BacktestResult = &result
		}
		if ids, err := requireIDList(params, "scenarioRunIds"); err == nil {
			req.ScenarioRunIDs = ids
		}
		production, err := promotions.Promote(ctx, req)
		if err != nil {
			return failFromError("promote_learning", err)
		}
		return OK(production)
	})

	d.Register("reject_learning", func(ctx context.Context, params Params, exec ExecutionContext) Response {
		id, err := requireID(params, "id")
		if err != nil {
			return failFromParam(err)
		}
		reason, err := requireString(params, "reason")
		if err != nil {
			return failFromParam(err)
		}
		if err := promotions.Reject(ctx, id, exec.UserID, exec.OrgSlug, reason); err != nil {
			return failFromError("reject_learning", err)
		}
		return OK(map[string]interface{}{"id": id, "status": string(entity.LearningDisabled)})
	})
}
