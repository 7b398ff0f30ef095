// Package clickup talks to the ClickUp v2 REST API and decodes its webhooks.
package clickup

import (
	"bytes"
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

	"github.com/quailyquaily/taskrelay/internal/relay"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL           = "https://api.clickup.com/api/v2"
	DefaultRequestsPerMinute = 100
)

type Options struct {
	HTTPClient        *http.Client
	BaseURL           string
	APIToken          string
	RequestsPerMinute int
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
}

var _ relay.TaskTracker = (*Client)(nil)

func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.APIToken)
	if token == "" {
		return nil, fmt.Errorf("clickup api token is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimSpace(strings.TrimRight(opts.BaseURL, "/"))
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(1, rpm/10)),
	}, nil
}

type Folder struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hidden bool   `json:"hidden,omitempty"`
}

type List struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived,omitempty"`
}

type Task struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	List struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"list"`
}

type apiError struct {
	Err   string `json:"err"`
	ECode string `json:"ECODE"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Code   string
	Msg    string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Msg)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("clickup %s http %d (%s): %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("clickup %s http %d: %s", e.Op, e.Status, msg)
}

func (c *Client) ListFolders(ctx context.Context, spaceID string) ([]Folder, error) {
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return nil, fmt.Errorf("space_id is required")
	}
	var out struct {
		Folders []Folder `json:"folders"`
	}
	path := "/space/" + url.PathEscape(spaceID) + "/folder?archived=false"
	if err := c.doJSON(ctx, "list_folders", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

func (c *Client) ListFolderLists(ctx context.Context, folderID string) ([]List, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, fmt.Errorf("folder_id is required")
	}
	var out struct {
		Lists []List `json:"lists"`
	}
	path := "/folder/" + url.PathEscape(folderID) + "/list?archived=false"
	if err := c.doJSON(ctx, "list_folder_lists", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Lists, nil
}

func (c *Client) ListFolderlessLists(ctx context.Context, spaceID string) ([]List, error) {
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return nil, fmt.Errorf("space_id is required")
	}
	var out struct {
		Lists []List `json:"lists"`
	}
	path := "/space/" + url.PathEscape(spaceID) + "/list?archived=false"
	if err := c.doJSON(ctx, "list_folderless_lists", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Lists, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Task{}, fmt.Errorf("task_id is required")
	}
	var out Task
	if err := c.doJSON(ctx, "get_task", http.MethodGet, "/task/"+url.PathEscape(taskID), nil, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

// FetchTaskInfo adapts GetTask to the relay. A 404 maps to relay.ErrTaskNotFound.
func (c *Client) FetchTaskInfo(ctx context.Context, taskID string) (relay.TaskInfo, error) {
	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return relay.TaskInfo{}, fmt.Errorf("clickup task %s: %w", taskID, relay.ErrTaskNotFound)
		}
		return relay.TaskInfo{}, err
	}
	return relay.TaskInfo{
		ID:   strings.TrimSpace(task.ID),
		Name: strings.TrimSpace(task.Name),
		URL:  strings.TrimSpace(task.URL),
	}, nil
}

type postCommentRequest struct {
	CommentText string `json:"comment_text"`
	NotifyAll   bool   `json:"notify_all"`
}

func (c *Client) SendTaskComment(ctx context.Context, taskID string, text string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("comment text is required")
	}
	path := "/task/" + url.PathEscape(taskID) + "/comment"
	return c.doJSON(ctx, "post_comment", http.MethodPost, path, postCommentRequest{CommentText: text}, nil)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, out any) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("clickup client is not initialized")
	}
	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		body, status, headers, err := c.send(ctx, method, path, raw)
		if err != nil {
			lastErr = err
		} else if status >= 200 && status < 300 {
			if out == nil || len(bytes.TrimSpace(body)) == 0 {
				return nil
			}
			return json.Unmarshal(body, out)
		} else {
			var apiErr apiError
			_ = json.Unmarshal(body, &apiErr)
			lastErr = &StatusError{Op: op, Status: status, Code: apiErr.ECode, Msg: apiErr.Err}
		}

		if attempt >= maxAttempts {
			break
		}
		// A 5xx on a write may come after the write was applied.
		if method != http.MethodGet && status != http.StatusTooManyRequests {
			break
		}
		wait, retryable := retryDelay(status, headers, attempt, time.Now())
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, int, http.Header, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, err
	}
	// Personal tokens go in the header as-is, without a scheme.
	req.Header.Set("Authorization", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}

// retryDelay honours X-RateLimit-Reset (unix seconds) on 429 and backs off on 5xx.
func retryDelay(status int, headers http.Header, attempt int, now time.Time) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		reset := strings.TrimSpace(headers.Get("X-RateLimit-Reset"))
		if reset == "" {
			return time.Second, true
		}
		secs, err := strconv.ParseInt(reset, 10, 64)
		if err != nil {
			return time.Second, true
		}
		wait := time.Unix(secs, 0).Sub(now)
		if wait <= 0 {
			return time.Second, true
		}
		if wait > time.Minute {
			wait = time.Minute
		}
		return wait, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
