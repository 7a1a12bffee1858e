package common

const (
	RedisStreamSignalSweep     = "signal.sweep"
	RedisStreamSignalDetection = "signal.detection"
	RedisStreamReplayRun       = "replay.run"

	RedisStreamGroup    = "engine-group"
	RedisStreamConsumer = "engine-consumer"
)
