package dto

// StreamDataSignalSweep asks a worker to run one claim-based processing
// sweep over a universe.
type StreamDataSignalSweep struct {
	UniverseID string   `json:"universe_id"`
	TargetIDs  []string `json:"target_ids,omitempty"`
	BatchSize  int      `json:"batch_size,omitempty"`
	WorkerID   string   `json:"worker_id,omitempty"`
}

// FeedTarget is one RSS source to pull during signal detection.
type FeedTarget struct {
	TargetID   string `json:"target_id"`
	UniverseID string `json:"universe_id"`
	SourceID   string `json:"source_id"`
	FeedURL    string `json:"feed_url"`
	Query      string `json:"query,omitempty"`
}

// StreamDataDetection asks a worker to pull feeds and create pending signals.
type StreamDataDetection struct {
	UniverseID string       `json:"universe_id"`
	Targets    []FeedTarget `json:"targets"`
}

// StreamDataReplay asks a worker to execute a replay run.
type StreamDataReplay struct {
	ReplayRunID uint `json:"replay_run_id"`
}
