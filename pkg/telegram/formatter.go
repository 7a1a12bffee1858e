package telegram

import (
	"fmt"
	"time"
)

// FormatPredictionMessage renders a created-prediction notification.
func FormatPredictionMessage(targetID, direction string, confidence float64, timeframeHours int, predictorCount int) string {
	return fmt.Sprintf(
		"<b>New Prediction</b>\nTarget: %s\nDirection: %s\nConfidence: %.2f\nTimeframe: %dh\nPredictors: %d",
		targetID, direction, confidence, timeframeHours, predictorCount,
	)
}

// FormatPromotionMessage renders a learning-promotion notification.
func FormatPromotionMessage(title string, successRate, improvementScore float64, promotedBy string) string {
	return fmt.Sprintf(
		"<b>Learning Promoted</b>\nTitle: %s\nSuccess rate: %.2f\nBacktest improvement: %.3f\nPromoted by: %s",
		title, successRate, improvementScore, promotedBy,
	)
}

// FormatReplayMessage renders a replay-completion notification.
func FormatReplayMessage(replayID uint, status string, totalComparisons, directionMatches int) string {
	return fmt.Sprintf(
		"<b>Replay %s</b>\nRun: %d\nComparisons: %d\nDirection matches: %d",
		status, replayID, totalComparisons, directionMatches,
	)
}

// FormatErrorAlertMessage renders an operator error alert.
func FormatErrorAlertMessage(at time.Time, errType, errMsg, payload string) string {
	return fmt.Sprintf(
		"<b>Engine Alert</b>\nTime: %s\nType: %s\nError: %s\nPayload: %s",
		at.Format(time.RFC3339), errType, errMsg, payload,
	)
}
