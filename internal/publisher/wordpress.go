package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ubuygold/contentmill/internal/model"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Post is the content of a new CMS post.
type Post struct {
	Title      string
	Content    string
	Slug       string
	CategoryID int64
}

// PostResult identifies a created post.
type PostResult struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type createPostRequest struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Slug       string  `json:"slug"`
	Status     string  `json:"status"`
	PingStatus string  `json:"ping_status"`
	Categories []int64 `json:"categories,omitempty"`
}

// WordPressClient creates posts through the WordPress REST API using application passwords.
type WordPressClient struct {
	httpClient HTTPClient
}

func NewWordPressClient(timeout time.Duration) *WordPressClient {
	return &WordPressClient{httpClient: &http.Client{Timeout: timeout}}
}

// CreatePost publishes a post and returns its id and public link.
func (c *WordPressClient) CreatePost(ctx context.Context, creds model.WordPress, post Post) (*PostResult, error) {
	body := createPostRequest{
		Title:      post.Title,
		Content:    post.Content,
		Slug:       post.Slug,
		Status:     "publish",
		PingStatus: "open",
	}
	if post.CategoryID != 0 {
		body.Categories = []int64{post.CategoryID}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode post: %w", err)
	}

	endpoint := strings.TrimRight(creds.URL, "/") + "/wp-json/wp/v2/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(creds.Username, creds.AppPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request to %s failed: %w", model.ErrRemoteIntegration, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: wordpress returned status %d, body: %s", model.ErrRemoteIntegration, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var result PostResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode wordpress response: %w", model.ErrRemoteIntegration, err)
	}
	if result.ID == 0 {
		return nil, fmt.Errorf("%w: wordpress response has no post id", model.ErrRemoteIntegration)
	}
	return &result, nil
}
