// Package blogger publishes posts through the Google Blogger v3 API with a
// Bearer access token. Draft visibility maps to the isDraft query flag.
package blogger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/choiwjun/blogflow/internal/markup"
	"github.com/choiwjun/blogflow/internal/retry"
	"github.com/choiwjun/blogflow/internal/service/publisher"
)

const (
	platformName   = "blogger"
	defaultAPIBase = "https://www.googleapis.com/blogger/v3"
)

type Publisher struct {
	logger  *zap.Logger
	client  *http.Client
	apiBase string
}

type postRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Labels  []string `json:"labels,omitempty"`
}

type postResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Published string `json:"published"`
}

// apiError is Google's standard error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func New(logger *zap.Logger) *Publisher {
	return &Publisher{
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: defaultAPIBase,
	}
}

func (p *Publisher) Platform() string {
	return platformName
}

func (p *Publisher) ValidateCredentials(creds publisher.Credentials) error {
	if creds.AccessToken == "" {
		return errors.New("blogger: access token is required")
	}
	if creds.BlogID == "" {
		return errors.New("blogger: blog ID is required")
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, params publisher.PublishParams, creds publisher.Credentials, retryCfg retry.Config) (*publisher.PublishResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return publisher.Failure(platformName, err), nil
	}

	isDraft := params.Visibility == "draft"
	endpoint := fmt.Sprintf("%s/blogs/%s/posts?isDraft=%t", p.apiBase, creds.BlogID, isDraft)

	return p.write(ctx, http.MethodPost, endpoint, params, creds, retryCfg)
}

func (p *Publisher) Update(ctx context.Context, remotePostID string, params publisher.PublishParams, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return publisher.Failure(platformName, err), nil
	}

	endpoint := fmt.Sprintf("%s/blogs/%s/posts/%s", p.apiBase, creds.BlogID, remotePostID)

	return p.write(ctx, http.MethodPut, endpoint, params, creds, retry.DefaultConfig)
}

// ListCategories always succeeds with an empty list: Blogger has no category
// taxonomy, labels are free-form strings attached per post.
func (p *Publisher) ListCategories(ctx context.Context, creds publisher.Credentials) (*publisher.CategoryResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return &publisher.CategoryResult{Success: false, Platform: platformName, Error: err.Error()}, nil
	}

	return &publisher.CategoryResult{
		Success:    true,
		Platform:   platformName,
		Categories: []publisher.Category{},
	}, nil
}

func (p *Publisher) write(ctx context.Context, method, endpoint string, params publisher.PublishParams, creds publisher.Credentials, retryCfg retry.Config) (*publisher.PublishResult, error) {
	payload, err := json.Marshal(postRequest{
		Title:   params.Title,
		Content: markup.ToHTML(params.Content),
		Labels:  params.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post request: %w", err)
	}

	post, err := retry.Do(ctx, retryCfg, func(ctx context.Context) (*postResponse, error) {
		return p.submit(ctx, method, endpoint, payload, creds)
	})
	if err != nil {
		p.logger.Warn("Blogger write failed",
			zap.String("blog_id", creds.BlogID),
			zap.Error(err))
		return publisher.Failure(platformName, err), nil
	}

	publishedAt := parsePublished(post.Published)
	p.logger.Info("Blogger write completed",
		zap.String("blog_id", creds.BlogID),
		zap.String("post_id", post.ID))

	return &publisher.PublishResult{
		Success:     true,
		Platform:    platformName,
		PostID:      post.ID,
		PostURL:     post.URL,
		PublishedAt: publishedAt,
	}, nil
}

func (p *Publisher) submit(ctx context.Context, method, endpoint string, payload []byte, creds publisher.Credentials) (*postResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, publisher.TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, publisher.TransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		message := ""
		if err := json.Unmarshal(body, &apiErr); err == nil {
			message = apiErr.Error.Message
		}
		return nil, publisher.StatusError(resp.StatusCode, message)
	}

	var post postResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &post, nil
}

func parsePublished(value string) *time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t
	}
	now := time.Now().UTC()
	return &now
}
