package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/ratelimit"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// geminiAssessorRepository produces analyst assessments with the Google
// Gemini API, budgeted by both requests and tokens per minute.
type geminiAssessorRepository struct {
	cfg            *config.Config
	logger         *logger.Logger
	tokenLimiter   *ratelimit.TokenLimiter
	requestLimiter *rate.Limiter
	genAiClient    *genai.Client
}

// NewGeminiAssessorRepository creates a new Gemini-backed assessor.
func NewGeminiAssessorRepository(cfg *config.Config, log *logger.Logger, genAiClient *genai.Client) (AssessorRepository, error) {
	if cfg.Gemini.MaxRequestPerMinute <= 0 {
		return nil, fmt.Errorf("gemini max_request_per_minute must be positive")
	}
	secondsPerRequest := time.Minute / time.Duration(cfg.Gemini.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)
	tokenLimiter := ratelimit.NewTokenLimiter(cfg.Gemini.MaxTokenPerMinute)

	return &geminiAssessorRepository{
		cfg:            cfg,
		logger:         log,
		requestLimiter: requestLimiter,
		tokenLimiter:   tokenLimiter,
		genAiClient:    genAiClient,
	}, nil
}

// Assess asks the model for one analyst's read of one signal.
func (r *geminiAssessorRepository) Assess(ctx context.Context, req dto.AssessmentRequest) (*dto.AnalystAssessment, error) {
	prompt := BuildAssessmentPrompt(req)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}
	tokenResp, err := r.genAiClient.Models.CountTokens(ctx, r.cfg.Gemini.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}

	r.logger.Debug("Gemini token count",
		logger.IntField("total_tokens", int(tokenResp.TotalTokens)),
		logger.IntField("remaining", r.tokenLimiter.GetRemaining()),
	)

	if err := r.tokenLimiter.Wait(ctx, int(tokenResp.TotalTokens)); err != nil {
		return nil, fmt.Errorf("failed to wait for token limit: %w", err)
	}
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request limit: %w", err)
	}

	resp, err := r.genAiClient.Models.GenerateContent(ctx, r.cfg.Gemini.Model, contents, nil)
	if err != nil {
		r.logger.Error("Gemini request failed", logger.ErrorField(err), logger.StringField("analyst", req.AnalystSlug))
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	return r.parseAssessment(resp)
}

func (r *geminiAssessorRepository) parseAssessment(resp *genai.GenerateContentResponse) (*dto.AnalystAssessment, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("invalid response from Gemini API: no content found")
	}

	jsonString := resp.Candidates[0].Content.Parts[0].Text
	jsonString = strings.Trim(jsonString, "`json\n`")

	var assessment dto.AnalystAssessment
	if err := json.Unmarshal([]byte(jsonString), &assessment); err != nil {
		r.logger.Error("Failed to unmarshal assessment", logger.ErrorField(err), logger.StringField("response", jsonString))
		return nil, fmt.Errorf("failed to unmarshal assessment from Gemini response: %w", err)
	}

	if err := validateAssessment(&assessment); err != nil {
		return nil, err
	}
	return &assessment, nil
}

func validateAssessment(a *dto.AnalystAssessment) error {
	switch a.Direction {
	case entity.DirectionBullish, entity.DirectionBearish, entity.DirectionNeutral:
	default:
		return fmt.Errorf("assessment has unknown direction %q", a.Direction)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("assessment confidence %f out of range", a.Confidence)
	}
	if a.Strength < 0 || a.Strength > 1 {
		return fmt.Errorf("assessment strength %f out of range", a.Strength)
	}
	return nil
}
