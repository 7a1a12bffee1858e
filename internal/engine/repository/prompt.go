package repository

import (
	"fmt"
	"strings"

	"golang-prediction-engine/internal/engine/dto"
)

// BuildAssessmentPrompt renders the prompt for one analyst assessing one
// signal. The response contract mirrors dto.AnalystAssessment.
func BuildAssessmentPrompt(req dto.AssessmentRequest) string {
	var b strings.Builder

	b.WriteString("You are a market analyst producing a structured assessment of a detected signal.\n\n")
	fmt.Fprintf(&b, "Analyst perspective: %s\n", req.Perspective)
	if req.TierInstructions != "" {
		fmt.Fprintf(&b, "Tier guidance (%s): %s\n", req.Tier, req.TierInstructions)
	}
	fmt.Fprintf(&b, "\nTarget: %s\n", req.TargetID)
	fmt.Fprintf(&b, "Signal direction hint: %s\n", req.SignalDirection)
	fmt.Fprintf(&b, "Signal content:\n%s\n", req.SignalContent)

	if len(req.LearningsApplied) > 0 {
		b.WriteString("\nApply these learned rules where relevant:\n")
		for _, l := range req.LearningsApplied {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}

	b.WriteString(`
Respond with JSON only, no prose, matching exactly:
{
  "direction": "bullish" | "bearish" | "neutral",
  "strength": <float 0..1>,
  "confidence": <float 0..1>,
  "reasoning": "<short explanation>",
  "key_factors": ["<factor>", ...],
  "risks": ["<risk>", ...]
}
`)
	return b.String()
}
