package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang-prediction-engine/internal/engine/service"
	"golang-prediction-engine/pkg/logger"
)

// Fixed message substituted for panics that are not error values, so no
// internal state leaks through the envelope.
const panicMessage = "internal failure"

// ExecutionContext identifies who is acting. It travels with every
// operation.
type ExecutionContext struct {
	OrgSlug   string `json:"orgSlug"`
	UserID    string `json:"userId"`
	AgentSlug string `json:"agentSlug"`
}

// Params is the raw parameter bag an action receives.
type Params map[string]interface{}

// HandlerFunc executes one action.
type HandlerFunc func(ctx context.Context, params Params, exec ExecutionContext) Response

// Dispatcher routes incoming actions to handlers. Matching is tolerant of
// case, hyphens, and underscores at this boundary only; internally every
// action has exactly one canonical snake_case name.
type Dispatcher struct {
	log      *logger.Logger
	handlers map[string]HandlerFunc
	names    map[string]string
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[string]HandlerFunc),
		names:    make(map[string]string),
	}
}

// Register binds a canonical action name to its handler.
func (d *Dispatcher) Register(action string, handler HandlerFunc) {
	key := normalizeAction(action)
	d.handlers[key] = handler
	d.names[key] = action
}

// SupportedActions lists the canonical action names, sorted.
func (d *Dispatcher) SupportedActions() []string {
	actions := make([]string, 0, len(d.names))
	for _, name := range d.names {
		actions = append(actions, name)
	}
	sort.Strings(actions)
	return actions
}

// Dispatch resolves and runs the action, converting panics and unmapped
// errors into envelope failures. It never returns a Go error; every outcome
// is an envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, params Params, exec ExecutionContext) (resp Response) {
	handler, ok := d.handlers[normalizeAction(action)]
	if !ok {
		return FailWithDetails("UNSUPPORTED_ACTION",
			fmt.Sprintf("action %q is not supported", action),
			map[string]interface{}{"supportedActions": d.SupportedActions()})
	}

	defer func() {
		if r := recover(); r != nil {
			msg := panicMessage
			if err, ok := r.(error); ok {
				msg = err.Error()
			}
			d.log.Error("Action panicked",
				logger.StringField("action", action),
				logger.Field("panic", r))
			resp = Fail(operationFailedCode(action), msg)
		}
	}()

	if params == nil {
		params = Params{}
	}
	return handler(ctx, params, exec)
}

// normalizeAction folds case and separator differences so callers can spell
// actions as get-snapshot, getSnapshot, or GET_SNAPSHOT interchangeably.
func normalizeAction(action string) string {
	var b strings.Builder
	for _, r := range action {
		switch {
		case r == '-' || r == '_' || r == ' ':
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// operationFailedCode derives the <OPERATION>_FAILED code from the canonical
// action name.
func operationFailedCode(action string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(action))
	return name + "_FAILED"
}

// failFromError maps service sentinels onto envelope codes, falling back to
// the action's <OPERATION>_FAILED code.
func failFromError(action string, err error) Response {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return Fail("NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrNoEvaluation):
		return Fail("NO_EVALUATION", err.Error())
	case errors.Is(err, service.ErrInvalidValue):
		return Fail("INVALID_VALUE", err.Error())
	case errors.Is(err, service.ErrInvalidReason):
		return Fail("INVALID_REASON", err.Error())
	case errors.Is(err, service.ErrInvalidField):
		return Fail("INVALID_FIELD", err.Error())
	case errors.Is(err, service.ErrNotResolved):
		return Fail("INVALID_DATA", err.Error())
	case errors.Is(err, service.ErrMirrorExists):
		return Fail("MIRROR_EXISTS", err.Error())
	case errors.Is(err, service.ErrReplayRunning):
		return Fail("REPLAY_RUNNING", err.Error())
	case errors.Is(err, service.ErrReplayNotPending),
		errors.Is(err, service.ErrReplayIncomplete),
		errors.Is(err, service.ErrReplayActive):
		return Fail("INVALID_DATA", err.Error())
	case errors.Is(err, service.ErrLearningNotTest),
		errors.Is(err, service.ErrLearningInactive),
		errors.Is(err, service.ErrAlreadyPromoted),
		errors.Is(err, service.ErrValidationFailed):
		return Fail("INVALID_DATA", err.Error())
	default:
		return Fail(operationFailedCode(action), err.Error())
	}
}
