// Package tistory publishes posts through the Tistory open API. Every
// response arrives inside a nested {"tistory": ...} envelope whose string
// status code must be checked in addition to the transport status: the API
// can report a client error inside an HTTP 200.
package tistory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/choiwjun/blogflow/internal/markup"
	"github.com/choiwjun/blogflow/internal/retry"
	"github.com/choiwjun/blogflow/internal/service/publisher"
)

const (
	platformName   = "tistory"
	defaultAPIBase = "https://www.tistory.com/apis"

	visibilityDraft  = "0"
	visibilityPublic = "3"
)

type Publisher struct {
	logger  *zap.Logger
	client  *http.Client
	apiBase string
}

// envelope is Tistory's uniform response wrapper.
type envelope struct {
	Tistory struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		PostID       string `json:"postId"`
		URL          string `json:"url"`
		Item         *struct {
			Categories []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"categories"`
		} `json:"item"`
	} `json:"tistory"`
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
		return errors.New("tistory: access token is required")
	}
	if creds.BlogName == "" {
		return errors.New("tistory: blog name is required")
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, params publisher.PublishParams, creds publisher.Credentials, retryCfg retry.Config) (*publisher.PublishResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return publisher.Failure(platformName, err), nil
	}

	form := p.postForm(params, creds)

	env, err := retry.Do(ctx, retryCfg, func(ctx context.Context) (*envelope, error) {
		return p.call(ctx, "/post/write", form)
	})
	if err != nil {
		p.logger.Warn("Tistory publish failed",
			zap.String("blog_name", creds.BlogName),
			zap.Error(err))
		return publisher.Failure(platformName, err), nil
	}

	now := time.Now().UTC()
	p.logger.Info("Tistory publish completed",
		zap.String("blog_name", creds.BlogName),
		zap.String("post_id", env.Tistory.PostID))

	return &publisher.PublishResult{
		Success:     true,
		Platform:    platformName,
		PostID:      env.Tistory.PostID,
		PostURL:     env.Tistory.URL,
		PublishedAt: &now,
	}, nil
}

func (p *Publisher) Update(ctx context.Context, remotePostID string, params publisher.PublishParams, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return publisher.Failure(platformName, err), nil
	}

	form := p.postForm(params, creds)
	form.Set("postId", remotePostID)

	env, err := retry.Do(ctx, retry.DefaultConfig, func(ctx context.Context) (*envelope, error) {
		return p.call(ctx, "/post/modify", form)
	})
	if err != nil {
		return publisher.Failure(platformName, err), nil
	}

	now := time.Now().UTC()
	return &publisher.PublishResult{
		Success:     true,
		Platform:    platformName,
		PostID:      env.Tistory.PostID,
		PostURL:     env.Tistory.URL,
		PublishedAt: &now,
	}, nil
}

func (p *Publisher) ListCategories(ctx context.Context, creds publisher.Credentials) (*publisher.CategoryResult, error) {
	if err := p.ValidateCredentials(creds); err != nil {
		return &publisher.CategoryResult{Success: false, Platform: platformName, Error: err.Error()}, nil
	}

	query := url.Values{}
	query.Set("access_token", creds.AccessToken)
	query.Set("output", "json")
	query.Set("blogName", creds.BlogName)

	env, err := p.get(ctx, "/category/list", query)
	if err != nil {
		return &publisher.CategoryResult{Success: false, Platform: platformName, Error: err.Error()}, nil
	}

	var categories []publisher.Category
	if env.Tistory.Item != nil {
		for _, c := range env.Tistory.Item.Categories {
			categories = append(categories, publisher.Category{ID: c.ID, Name: c.Name})
		}
	}

	return &publisher.CategoryResult{
		Success:    true,
		Platform:   platformName,
		Categories: categories,
	}, nil
}

func (p *Publisher) postForm(params publisher.PublishParams, creds publisher.Credentials) url.Values {
	visibility := visibilityPublic
	if params.Visibility == "draft" {
		visibility = visibilityDraft
	}

	form := url.Values{}
	form.Set("access_token", creds.AccessToken)
	form.Set("output", "json")
	form.Set("blogName", creds.BlogName)
	form.Set("title", params.Title)
	form.Set("content", markup.ToHTML(params.Content))
	form.Set("visibility", visibility)
	if params.Category != "" {
		form.Set("category", params.Category)
	}
	if len(params.Tags) > 0 {
		form.Set("tag", strings.Join(params.Tags, ","))
	}
	return form
}

func (p *Publisher) call(ctx context.Context, endpoint string, form url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return p.send(req)
}

func (p *Publisher) get(ctx context.Context, endpoint string, query url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return p.send(req)
}

func (p *Publisher) send(req *http.Request) (*envelope, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, publisher.TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, publisher.TransportError(err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, publisher.StatusError(resp.StatusCode, "")
		}
		// An unparseable 200 will not improve on retry.
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Both the transport status and the envelope's own status code count.
	if resp.StatusCode != http.StatusOK {
		return nil, publisher.StatusError(resp.StatusCode, env.Tistory.ErrorMessage)
	}
	if env.Tistory.Status != strconv.Itoa(http.StatusOK) {
		code, convErr := strconv.Atoi(env.Tistory.Status)
		if convErr != nil {
			return nil, fmt.Errorf("unexpected envelope status %q: %s", env.Tistory.Status, env.Tistory.ErrorMessage)
		}
		return nil, publisher.StatusError(code, env.Tistory.ErrorMessage)
	}

	return &env, nil
}
