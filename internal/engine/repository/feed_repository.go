package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/pkg/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/mauidude/go-readability"
	"github.com/mmcdole/gofeed"
)

// FeedArticle is one fetched item with its extracted body text.
type FeedArticle struct {
	Title       string
	Link        string
	GUID        string
	PublishedAt time.Time
	Content     string
}

// FeedRepository pulls RSS items and extracts article bodies for signal
// detection.
type FeedRepository interface {
	FetchArticles(ctx context.Context, target dto.FeedTarget, maxAge time.Duration) ([]FeedArticle, error)
}

// NewFeedRepository creates a new RSS feed repository.
func NewFeedRepository(log *logger.Logger) FeedRepository {
	return &feedRepository{
		logger: log,
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
	}
}

type feedRepository struct {
	logger *logger.Logger
	client *http.Client
	parser *gofeed.Parser
}

func (r *feedRepository) FetchArticles(ctx context.Context, target dto.FeedTarget, maxAge time.Duration) ([]FeedArticle, error) {
	feed, err := r.parser.ParseURLWithContext(target.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", target.FeedURL, err)
	}

	cutoff := time.Now().Add(-maxAge)
	var articles []FeedArticle
	for _, item := range feed.Items {
		published := time.Now()
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		}
		if published.Before(cutoff) {
			continue
		}

		content, err := r.extractBody(ctx, item.Link)
		if err != nil {
			// A single unreadable article never fails the sweep.
			r.logger.Warn("Failed to extract article body",
				logger.ErrorField(err),
				logger.StringField("link", item.Link))
			content = item.Description
		}

		articles = append(articles, FeedArticle{
			Title:       item.Title,
			Link:        item.Link,
			GUID:        item.GUID,
			PublishedAt: published,
			Content:     content,
		})
	}
	return articles, nil
}

// extractBody downloads the article and isolates readable text.
func (r *feedRepository) extractBody(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching article", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read article body: %w", err)
	}

	doc, err := readability.NewDocument(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}
	content := doc.Content()

	docHTML, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(content)))
	if err != nil {
		return "", fmt.Errorf("failed to strip markup: %w", err)
	}
	text := strings.TrimSpace(docHTML.Text())
	if text == "" {
		return "", fmt.Errorf("article body empty after extraction")
	}
	return text, nil
}
