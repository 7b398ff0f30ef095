package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quailyquaily/taskrelay/internal/relay"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		HTTPClient:        srv.Client(),
		BaseURL:           srv.URL + "/",
		APIToken:          "pk_test",
		RequestsPerMinute: 6000,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{APIToken: " "}); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestFetchTaskInfo(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "pk_test" {
			t.Errorf("authorization mismatch: got %q", got)
		}
		switch r.URL.Path {
		case "/task/abc":
			_, _ = io.WriteString(w, `{"id":"abc","name":" Fix login ","url":"https://app.clickup.com/t/abc","list":{"id":"L1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"err":"Task not found","ECODE":"ITEM_013"}`)
		}
	})

	info, err := c.FetchTaskInfo(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchTaskInfo() error = %v", err)
	}
	want := relay.TaskInfo{ID: "abc", Name: "Fix login", URL: "https://app.clickup.com/t/abc"}
	if info != want {
		t.Fatalf("task info mismatch: got %+v want %+v", info, want)
	}

	_, err = c.FetchTaskInfo(context.Background(), "missing")
	if !errors.Is(err, relay.ErrTaskNotFound) {
		t.Fatalf("error mismatch: got %v want ErrTaskNotFound", err)
	}
}

func TestSendTaskCommentPostsBody(t *testing.T) {
	t.Parallel()

	var got postCommentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/task/t1/comment" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type mismatch: got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"id":"c1","hist_id":"h1","date":1700000000000}`)
	})

	if err := c.SendTaskComment(context.Background(), "t1", "carol: hi [API_COMMENT]"); err != nil {
		t.Fatalf("SendTaskComment() error = %v", err)
	}
	if got.CommentText != "carol: hi [API_COMMENT]" || got.NotifyAll {
		t.Fatalf("request mismatch: got %+v", got)
	}
	if err := c.SendTaskComment(context.Background(), "t1", "  "); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestListFoldersAndLists(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("archived") != "false" {
			t.Errorf("archived filter missing on %s", r.URL.String())
		}
		switch r.URL.Path {
		case "/space/S1/folder":
			_, _ = io.WriteString(w, `{"folders":[{"id":"F1","name":"Clients"}]}`)
		case "/folder/F1/list":
			_, _ = io.WriteString(w, `{"lists":[{"id":"L1","name":"Website (ABC-1234)"},{"id":"L2","name":"Old","archived":true}]}`)
		case "/space/S1/list":
			_, _ = io.WriteString(w, `{"lists":[{"id":"L3","name":"Ops (OPS-4321)"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	src, err := NewSpaceSource(c, "S1")
	if err != nil {
		t.Fatalf("NewSpaceSource() error = %v", err)
	}
	ctx := context.Background()
	folders, err := src.ListFolders(ctx)
	if err != nil || len(folders) != 1 || folders[0].ID != "F1" {
		t.Fatalf("ListFolders() = %+v, %v", folders, err)
	}
	lists, err := src.ListFolderLists(ctx, "F1")
	if err != nil {
		t.Fatalf("ListFolderLists() error = %v", err)
	}
	if len(lists) != 1 || lists[0].ID != "L1" {
		t.Fatalf("archived lists must be dropped: got %+v", lists)
	}
	folderless, err := src.ListFolderlessLists(ctx)
	if err != nil || len(folderless) != 1 || folderless[0].Name != "Ops (OPS-4321)" {
		t.Fatalf("ListFolderlessLists() = %+v, %v", folderless, err)
	}
}

func TestDoJSONRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"id":"abc","name":"x","url":"u"}`)
	})
	if _, err := c.GetTask(context.Background(), "abc"); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls mismatch: got %d want 2", got)
	}
}

func TestSendTaskCommentRetriesOnlyRateLimits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.SendTaskComment(context.Background(), "t1", "hello")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("error mismatch: got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("5xx on a comment post must not be retried: calls=%d", got)
	}

	calls.Store(0)
	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Reset", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"id":"c1"}`)
	})
	if err := c.SendTaskComment(context.Background(), "t1", "hello"); err != nil {
		t.Fatalf("SendTaskComment() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("429 should be retried: calls=%d want 2", got)
	}
}

func TestDoJSONDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"err":"Token invalid","ECODE":"OAUTH_025"}`)
	})
	_, err := c.GetTask(context.Background(), "abc")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized || se.Code != "OAUTH_025" {
		t.Fatalf("error mismatch: got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls mismatch: got %d want 1", got)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	h := http.Header{}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(5*time.Second).Unix(), 10))
	if wait, ok := retryDelay(http.StatusTooManyRequests, h, 1, now); !ok || wait != 5*time.Second {
		t.Fatalf("429 delay mismatch: got %v, %v", wait, ok)
	}
	if wait, ok := retryDelay(http.StatusTooManyRequests, http.Header{}, 1, now); !ok || wait != time.Second {
		t.Fatalf("429 default delay mismatch: got %v, %v", wait, ok)
	}
	if _, ok := retryDelay(http.StatusBadRequest, http.Header{}, 1, now); ok {
		t.Fatalf("400 should not be retried")
	}
	if wait, ok := retryDelay(http.StatusServiceUnavailable, http.Header{}, 2, now); !ok || wait != time.Second {
		t.Fatalf("5xx delay mismatch: got %v, %v", wait, ok)
	}
}
