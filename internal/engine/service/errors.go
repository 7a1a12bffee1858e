package service

import "errors"

// Business-rule failures. These are well-defined "no" answers, surfaced to
// the dispatcher as specific envelope codes, never as infrastructure errors.
var (
	ErrNotFound         = errors.New("record not found")
	ErrNoEvaluation     = errors.New("no evaluation computed for prediction")
	ErrInvalidValue     = errors.New("override value out of range")
	ErrInvalidReason    = errors.New("override reason too short")
	ErrInvalidField     = errors.New("unknown override field")
	ErrNotResolved      = errors.New("prediction outcome not yet known")
	ErrMirrorExists     = errors.New("agent fork already exists")
	ErrLearningNotTest  = errors.New("learning is not a test learning")
	ErrLearningInactive = errors.New("learning is not active")
	ErrAlreadyPromoted  = errors.New("learning already promoted")
	ErrReplayRunning    = errors.New("a replay is already running for this universe")
	ErrReplayNotPending = errors.New("replay run is not pending")
	ErrReplayIncomplete = errors.New("replay run has not completed")
	ErrReplayActive     = errors.New("replay run is still running")
	ErrValidationFailed = errors.New("promotion validation failed")
)
