package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/choiwjun/blogflow/internal/config"
	"github.com/choiwjun/blogflow/internal/models"
	"github.com/choiwjun/blogflow/internal/retry"
	"github.com/choiwjun/blogflow/internal/service/publisher"
	"github.com/choiwjun/blogflow/internal/service/publisher/blogger"
	"github.com/choiwjun/blogflow/internal/service/publisher/tistory"
	"github.com/choiwjun/blogflow/internal/service/publisher/wordpress"
	"github.com/choiwjun/blogflow/pkg/util"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrBlogNotFound    = errors.New("blog connection not found")
	ErrNotOwner        = errors.New("requester does not own this post")
	ErrInvalidStatus   = errors.New("post status does not allow this transition")
	ErrPublishInFlight = errors.New("a publish attempt is already in flight for this post")
	ErrEmptyTitle      = errors.New("post title must not be empty")
	ErrEmptyContent    = errors.New("post content must not be empty")
	ErrScheduleInPast  = errors.New("scheduled time must be in the future")
	ErrMissingSchedule = errors.New("scheduled posts require a scheduled time")
)

// Orchestrator drives posts through the publish lifecycle. It is the only
// component that mutates post state, and it does so with status-conditioned
// updates so concurrent scheduler instances cannot double-submit one post.
type Orchestrator struct {
	db             *gorm.DB
	logger         *zap.Logger
	manager        *publisher.Manager
	retryCfg       retry.Config
	maxAutoRetries int
	batchSize      int
}

// CreatePostInput carries the fields accepted when a post enters the
// pipeline, either from a user submission or an upstream content generator.
type CreatePostInput struct {
	UserID      string
	BlogID      string
	KeywordID   string
	Title       string
	Content     string
	Category    string
	Tags        []string
	Visibility  string
	Status      models.PostStatus
	ScheduledAt *time.Time
}

// Summary reports one scheduler run.
type Summary struct {
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

func NewOrchestrator(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		db:             db,
		logger:         logger,
		manager:        publisher.NewManager(logger),
		retryCfg:       cfg.Publisher.RetryConfig(),
		maxAutoRetries: cfg.Publisher.MaxAutoRetries,
		batchSize:      cfg.Publisher.BatchSize,
	}

	for _, p := range []publisher.Publisher{
		tistory.New(logger),
		wordpress.New(logger),
		blogger.New(logger),
	} {
		if err := o.manager.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register publisher: %w", err)
		}
	}

	return o, nil
}

// Platforms lists the supported target platforms.
func (o *Orchestrator) Platforms() []string {
	return o.manager.Platforms()
}

// CreatePost validates and persists a new post. The initial status is
// caller-supplied and limited to draft, pending or scheduled.
func (o *Orchestrator) CreatePost(ctx context.Context, input CreatePostInput) (*models.Post, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyContent
	}

	switch input.Status {
	case models.StatusDraft, models.StatusPending:
	case models.StatusScheduled:
		if input.ScheduledAt == nil {
			return nil, ErrMissingSchedule
		}
		if !input.ScheduledAt.After(time.Now()) {
			return nil, ErrScheduleInPast
		}
	default:
		return nil, fmt.Errorf("%w: cannot create post with status %q", ErrInvalidStatus, input.Status)
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	// Inputs may carry comma-joined tag strings; flatten them to clean values.
	tags := []string{}
	for _, t := range input.Tags {
		tags = append(tags, util.ParseTags(t)...)
	}

	post := &models.Post{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		BlogID:      input.BlogID,
		KeywordID:   input.KeywordID,
		Title:       input.Title,
		Content:     input.Content,
		Category:    input.Category,
		Tags:        models.StringArray(tags),
		Visibility:  visibility,
		Status:      input.Status,
		ScheduledAt: input.ScheduledAt,
	}

	if err := o.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return post, nil
}

func (o *Orchestrator) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	if err := o.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	return &post, nil
}

// PublishPost runs a publish attempt for a pending or scheduled post.
func (o *Orchestrator) PublishPost(ctx context.Context, postID string) (*publisher.PublishResult, error) {
	post, err := o.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	switch post.Status {
	case models.StatusPending, models.StatusScheduled:
	default:
		if post.Status == models.StatusPublishing {
			return nil, ErrPublishInFlight
		}
		return nil, fmt.Errorf("%w: post is %q", ErrInvalidStatus, post.Status)
	}

	if err := o.claim(ctx, post.ID, post.Status); err != nil {
		return nil, err
	}

	return o.attempt(ctx, post), nil
}

// RetryPost re-runs a failed post on an explicit user request. Only the
// post's owner may retry, and only from the failed status.
func (o *Orchestrator) RetryPost(ctx context.Context, postID, requesterID string) (*publisher.PublishResult, error) {
	post, err := o.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if post.UserID != requesterID {
		return nil, ErrNotOwner
	}
	if post.Status != models.StatusFailed {
		if post.Status == models.StatusPublishing {
			return nil, ErrPublishInFlight
		}
		return nil, fmt.Errorf("%w: only failed posts can be retried, post is %q", ErrInvalidStatus, post.Status)
	}

	if err := o.claim(ctx, post.ID, models.StatusFailed); err != nil {
		return nil, err
	}

	return o.attempt(ctx, post), nil
}

// ProcessDue publishes every scheduled post whose time has passed and
// auto-retries failed posts below the retry cap. One post's failure, even a
// panic, never aborts the rest of the batch.
func (o *Orchestrator) ProcessDue(ctx context.Context) (*Summary, error) {
	summary := &Summary{Errors: []string{}}

	var due []models.Post
	if err := o.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.StatusScheduled, time.Now()).
		Limit(o.batchSize).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("failed to load due posts: %w", err)
	}

	var retryable []models.Post
	if err := o.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", models.StatusFailed, o.maxAutoRetries).
		Limit(o.batchSize).
		Find(&retryable).Error; err != nil {
		return nil, fmt.Errorf("failed to load retryable posts: %w", err)
	}

	for i := range due {
		o.processOne(ctx, &due[i], models.StatusScheduled, summary)
	}
	for i := range retryable {
		o.processOne(ctx, &retryable[i], models.StatusFailed, summary)
	}

	o.logger.Info("Scheduler run completed",
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// ListCategories asks the blog's platform adapter for its category set.
func (o *Orchestrator) ListCategories(ctx context.Context, blogID string) (*publisher.CategoryResult, error) {
	blog, err := o.getBlog(ctx, blogID)
	if err != nil {
		return nil, err
	}

	adapter, err := o.manager.Get(blog.Platform)
	if err != nil {
		return nil, err
	}

	return adapter.ListCategories(ctx, credentialsFor(blog))
}

func (o *Orchestrator) processOne(ctx context.Context, post *models.Post, from models.PostStatus, summary *Summary) {
	if err := o.claim(ctx, post.ID, from); err != nil {
		// Another instance claimed it first; not an error for this run.
		if errors.Is(err, ErrPublishInFlight) || errors.Is(err, ErrInvalidStatus) {
			return
		}
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", post.ID, err))
		return
	}

	result := o.attempt(ctx, post)
	if result.Success {
		summary.Published++
	} else {
		summary.Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", post.ID, result.Error))
	}
}

// claim transitions one post into publishing, conditioned on the stored
// status still matching the expected pre-state. The conditional update is
// what guarantees at most one in-flight attempt per post across processes.
func (o *Orchestrator) claim(ctx context.Context, postID string, from models.PostStatus) error {
	res := o.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND status = ?", postID, from).
		Update("status", models.StatusPublishing)
	if res.Error != nil {
		return fmt.Errorf("failed to claim post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := o.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if current.Status == models.StatusPublishing {
			return ErrPublishInFlight
		}
		return fmt.Errorf("%w: expected %q, found %q", ErrInvalidStatus, from, current.Status)
	}
	return nil
}

// attempt runs one publish attempt for a post already claimed into
// publishing and maps the adapter result onto the final state transition.
// Panics from adapter code are converted into a failed attempt.
func (o *Orchestrator) attempt(ctx context.Context, post *models.Post) (result *publisher.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic during publish attempt",
				zap.String("post_id", post.ID),
				zap.Any("panic", r))
			message := fmt.Sprintf("internal error: %v", r)
			o.markFailed(post.ID, message)
			result = &publisher.PublishResult{Success: false, Error: message}
		}
	}()

	blog, err := o.getBlog(ctx, post.BlogID)
	if err != nil {
		o.markFailed(post.ID, err.Error())
		return publisher.Failure("", err)
	}

	adapter, err := o.manager.Get(blog.Platform)
	if err != nil {
		o.markFailed(post.ID, err.Error())
		return publisher.Failure(blog.Platform, err)
	}

	params := publisher.PublishParams{
		Title:      post.Title,
		Content:    post.Content,
		Category:   post.Category,
		Tags:       []string(post.Tags),
		Visibility: post.Visibility,
	}

	o.logger.Info("Publishing post",
		zap.String("post_id", post.ID),
		zap.String("platform", blog.Platform),
		zap.Int("retry_count", post.RetryCount))

	result, err = adapter.Publish(ctx, params, credentialsFor(blog), o.retryCfg)
	if err != nil {
		// Unexpected adapter error; expected failures come back in result.
		o.markFailed(post.ID, err.Error())
		return publisher.Failure(blog.Platform, err)
	}

	if result.Success {
		o.markPublished(post.ID, result)
	} else {
		o.markFailed(post.ID, result.Error)
	}

	return result
}

func (o *Orchestrator) markPublished(postID string, result *publisher.PublishResult) {
	publishedAt := time.Now().UTC()
	if result.PublishedAt != nil {
		publishedAt = *result.PublishedAt
	}

	res := o.db.Model(&models.Post{}).
		Where("id = ? AND status = ?", postID, models.StatusPublishing).
		Updates(map[string]interface{}{
			"status":        models.StatusPublished,
			"published_url": result.PostURL,
			"published_at":  publishedAt,
			"error_message": "",
		})
	if res.Error != nil || res.RowsAffected == 0 {
		o.logger.Error("Failed to record published state",
			zap.String("post_id", postID),
			zap.Error(res.Error))
	}
}

func (o *Orchestrator) markFailed(postID, message string) {
	res := o.db.Model(&models.Post{}).
		Where("id = ? AND status = ?", postID, models.StatusPublishing).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": util.Truncate(message, 2000),
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if res.Error != nil || res.RowsAffected == 0 {
		o.logger.Error("Failed to record failed state",
			zap.String("post_id", postID),
			zap.Error(res.Error))
	}
}

func (o *Orchestrator) getBlog(ctx context.Context, blogID string) (*models.Blog, error) {
	var blog models.Blog
	if err := o.db.WithContext(ctx).Where("id = ?", blogID).First(&blog).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlogNotFound
		}
		return nil, fmt.Errorf("failed to load blog: %w", err)
	}
	return &blog, nil
}

func credentialsFor(blog *models.Blog) publisher.Credentials {
	return publisher.Credentials{
		AccessToken: blog.AccessToken,
		BlogName:    blog.BlogName,
		BlogID:      blog.BlogRefID,
		BaseURL:     blog.BaseURL,
		Username:    blog.Username,
	}
}
