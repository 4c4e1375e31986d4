package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/choiwjun/blogflow/internal/retry"
)

// PublishParams is the content handed to an adapter. Title and Content are
// validated non-empty by the orchestrator before any adapter is invoked.
type PublishParams struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Visibility string   `json:"visibility"`
}

// Credentials is a read-only snapshot of one blog connection's auth fields.
// Each adapter validates only the fields its platform needs. Values are
// never persisted or logged by this package.
type Credentials struct {
	AccessToken string
	BlogName    string
	BlogID      string
	BaseURL     string
	Username    string
}

// Category is one platform-side category users can file posts under.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PublishResult is the normalized outcome of a publish or update call.
// It is consumed immediately by the orchestrator and never stored.
type PublishResult struct {
	Success     bool       `json:"success"`
	Platform    string     `json:"platform"`
	PostID      string     `json:"post_id,omitempty"`
	PostURL     string     `json:"post_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CategoryResult is the normalized outcome of a category listing.
type CategoryResult struct {
	Success    bool       `json:"success"`
	Platform   string     `json:"platform"`
	Categories []Category `json:"categories,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Publisher is the uniform contract every platform adapter implements.
// Expected failures come back inside the result with Success=false; the
// error return is reserved for programming mistakes.
type Publisher interface {
	Platform() string

	ValidateCredentials(creds Credentials) error

	Publish(ctx context.Context, params PublishParams, creds Credentials, retryCfg retry.Config) (*PublishResult, error)
	Update(ctx context.Context, remotePostID string, params PublishParams, creds Credentials) (*PublishResult, error)
	ListCategories(ctx context.Context, creds Credentials) (*CategoryResult, error)
}

// Failure builds a failed result for platform with err's message.
func Failure(platform string, err error) *PublishResult {
	return &PublishResult{
		Success:  false,
		Platform: platform,
		Error:    err.Error(),
	}
}

// StatusError normalizes a non-success platform response. Server-side
// failures (5xx) are marked transient so the retry executor re-attempts
// them; client-side failures are terminal. An empty message falls back to
// the bare status code.
func StatusError(statusCode int, message string) error {
	if message == "" {
		message = fmt.Sprintf("status %d", statusCode)
	}
	err := fmt.Errorf("platform returned %d: %s", statusCode, message)
	if statusCode >= 500 {
		return retry.Transient(err)
	}
	return err
}

// TransportError marks a network-level failure (DNS, connect, timeout) as
// transient.
func TransportError(err error) error {
	return retry.Transient(fmt.Errorf("request failed: %w", err))
}
