// Package wordpress publishes posts through the WordPress REST API using an
// application password over Basic auth.
package wordpress

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/choiwjun/blogflow/internal/markup"
	"github.com/choiwjun/blogflow/internal/retry"
	"github.com/choiwjun/blogflow/internal/service/publisher"
)

const (
	platformName = "wordpress"

	statusPublish = "publish"
	statusDraft   = "draft"
)

type Publisher struct {
	logger *zap.Logger
	client *http.Client
}

type postRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Status     string `json:"status"`
	Categories []int  `json:"categories,omitempty"`
	Tags       []int  `json:"tags,omitempty"`
}

type postResponse struct {
	ID      int    `json:"id"`
	Link    string `json:"link"`
	DateGMT string `json:"date_gmt"`
	Status  string `json:"status"`
}

// apiError is WordPress's REST error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
		TermID int `json:"term_id"`
	} `json:"data"`
}

type termResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func New(logger *zap.Logger) *Publisher {
	return &Publisher{
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Publisher) Platform() string {
	return platformName
}

func (p *Publisher) ValidateCredentials(creds publisher.Credentials) error {
	if creds.BaseURL == "" {
		return errors.New("wordpress: base URL is required")
	}
	if creds.Username == "" {
		return errors.New("wordpress: username is required")
	}
	if creds.AccessToken == "" {
		return errors.New("wordpress: application password is required")
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, params publisher.PublishParams, creds publisher.Credentials, retryCfg retry.Config) (*publisher.PublishResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return publisher.Failure(platformName, err), nil
	}

	return p.write(ctx, p.postsURL(creds), params, creds, retryCfg)
}

func (p *Publisher) Update(ctx context.Context, remotePostID string, params publisher.PublishParams, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return publisher.Failure(platformName, err), nil
	}

	return p.write(ctx, p.postsURL(creds)+"/"+remotePostID, params, creds, retry.DefaultConfig)
}

func (p *Publisher) ListCategories(ctx context.Context, creds publisher.Credentials) (*publisher.CategoryResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return &publisher.CategoryResult{Success: false, Platform: platformName, Error: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.restURL(creds, "/wp/v2/categories?per_page=100"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.authorize(req, creds)

	body, err := p.send(req)
	if err != nil {
		return &publisher.CategoryResult{Success: false, Platform: platformName, Error: err.Error()}, nil
	}

	var terms []termResponse
	if err := json.Unmarshal(body, &terms); err != nil {
		return &publisher.CategoryResult{
			Success:  false,
			Platform: platformName,
			Error:    fmt.Sprintf("failed to parse categories: %v", err),
		}, nil
	}

	categories := make([]publisher.Category, 0, len(terms))
	for _, t := range terms {
		categories = append(categories, publisher.Category{ID: strconv.Itoa(t.ID), Name: t.Name})
	}

	return &publisher.CategoryResult{
		Success:    true,
		Platform:   platformName,
		Categories: categories,
	}, nil
}

func (p *Publisher) write(ctx context.Context, endpoint string, params publisher.PublishParams, creds publisher.Credentials, retryCfg retry.Config) (*publisher.PublishResult, error) {
	status := statusPublish
	if params.Visibility == "draft" {
		status = statusDraft
	}

	request := postRequest{
		Title:   params.Title,
		Content: markup.ToHTML(params.Content),
		Status:  status,
	}

	if params.Category != "" {
		if id, err := strconv.Atoi(params.Category); err == nil {
			request.Categories = []int{id}
		}
	}

	// Tag resolution failures degrade to an untagged post rather than
	// failing the whole publish.
	if len(params.Tags) > 0 {
		request.Tags = p.resolveTags(ctx, params.Tags, creds)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post request: %w", err)
	}

	post, err := retry.Do(ctx, retryCfg, func(ctx context.Context) (*postResponse, error) {
		return p.submit(ctx, endpoint, payload, creds)
	})
	if err != nil {
		p.logger.Warn("WordPress write failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return publisher.Failure(platformName, err), nil
	}

	publishedAt := parseDateGMT(post.DateGMT)
	p.logger.Info("WordPress write completed",
		zap.Int("post_id", post.ID),
		zap.String("status", post.Status))

	return &publisher.PublishResult{
		Success:     true,
		Platform:    platformName,
		PostID:      strconv.Itoa(post.ID),
		PostURL:     post.Link,
		PublishedAt: publishedAt,
	}, nil
}

func (p *Publisher) submit(ctx context.Context, endpoint string, payload []byte, creds publisher.Credentials) (*postResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req, creds)

	body, err := p.send(req)
	if err != nil {
		return nil, err
	}

	var post postResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &post, nil
}

// resolveTags maps tag names to WordPress term IDs, creating terms that do
// not exist yet. The term_exists error carries the existing term's ID.
func (p *Publisher) resolveTags(ctx context.Context, names []string, creds publisher.Credentials) []int {
	var ids []int
	for _, name := range names {
		id, err := p.ensureTag(ctx, name, creds)
		if err != nil {
			p.logger.Warn("Failed to resolve WordPress tag, skipping",
				zap.String("tag", name),
				zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (p *Publisher) ensureTag(ctx context.Context, name string, creds publisher.Credentials) (int, error) {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tag request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.restURL(creds, "/wp/v2/tags"), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req, creds)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, publisher.TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, publisher.TransportError(err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var term termResponse
		if err := json.Unmarshal(body, &term); err != nil {
			return 0, fmt.Errorf("failed to parse tag response: %w", err)
		}
		return term.ID, nil
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code == "term_exists" && apiErr.Data.TermID != 0 {
		return apiErr.Data.TermID, nil
	}

	return 0, publisher.StatusError(resp.StatusCode, apiErr.Message)
}

func (p *Publisher) send(req *http.Request) ([]byte, error) {
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
			message = apiErr.Message
		}
		return nil, publisher.StatusError(resp.StatusCode, message)
	}

	return body, nil
}

func (p *Publisher) authorize(req *http.Request, creds publisher.Credentials) {
	token := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.AccessToken))
	req.Header.Set("Authorization", "Basic "+token)
}

func (p *Publisher) postsURL(creds publisher.Credentials) string {
	return p.restURL(creds, "/wp/v2/posts")
}

func (p *Publisher) restURL(creds publisher.Credentials, path string) string {
	return strings.TrimRight(creds.BaseURL, "/") + "/wp-json" + path
}

func parseDateGMT(value string) *time.Time {
	if value == "" {
		now := time.Now().UTC()
		return &now
	}
	t, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		now := time.Now().UTC()
		return &now
	}
	t = t.UTC()
	return &t
}
