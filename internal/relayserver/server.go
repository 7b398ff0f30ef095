// Package relayserver exposes the relay over HTTP: the two webhooks, the
// directory sync triggers and a health check.
package relayserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/taskrelay/internal/clickup"
	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/slackclient"
)

const maxBodyBytes = 1 << 20

type DirectorySyncer interface {
	CanSyncLists() bool
	CanSyncChannels() bool
	SyncLists(ctx context.Context) (directory.SyncReport, error)
	SyncChannels(ctx context.Context) (directory.SyncReport, error)
}

type RoutesOptions struct {
	// AuthToken guards the sync triggers and the delivery log. Empty leaves
	// them open.
	AuthToken string

	ClickUpWebhookSecret string
	SlackSigningSecret   string

	Dispatcher *Dispatcher
	Syncer     DirectorySyncer
	Logger     *slog.Logger
}

func RegisterRoutes(mux *http.ServeMux, opts RoutesOptions) {
	if mux == nil {
		return
	}
	authToken := strings.TrimSpace(opts.AuthToken)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := opts.Dispatcher
	syncer := opts.Syncer

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("/api/clickup-webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if dispatcher == nil {
			http.Error(w, "relay is unavailable", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if err := clickup.VerifySignature(opts.ClickUpWebhookSecret, body, r.Header.Get(clickup.SignatureHeader)); err != nil {
			logger.Warn("clickup_webhook_rejected", "error", err.Error())
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		res := dispatcher.ClickUpComment(r.Context(), body)
		writeResult(w, StatusForError(res.Err), res)
	})

	mux.HandleFunc("/api/slack-events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if dispatcher == nil {
			http.Error(w, "relay is unavailable", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if err := slackclient.VerifyRequest(r.Header, body, opts.SlackSigningSecret); err != nil {
			logger.Warn("slack_events_rejected", "error", err.Error())
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		res, challenge := dispatcher.SlackEvents(r.Context(), body)
		if challenge != "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, challenge)
			return
		}
		// Slack redelivers anything but 2xx, which would duplicate comments.
		writeResult(w, http.StatusOK, res)
	})

	syncHandler := func(kind string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodPost:
			default:
				w.Header().Set("Allow", "GET, POST")
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			if !authorized(r, authToken) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if syncer == nil {
				http.Error(w, "directory sync is unavailable", http.StatusServiceUnavailable)
				return
			}
			var (
				report directory.SyncReport
				err    error
			)
			switch kind {
			case "lists":
				if !syncer.CanSyncLists() {
					http.Error(w, "clickup is not configured", http.StatusServiceUnavailable)
					return
				}
				report, err = syncer.SyncLists(r.Context())
			default:
				if !syncer.CanSyncChannels() {
					http.Error(w, "slack is not configured", http.StatusServiceUnavailable)
					return
				}
				report, err = syncer.SyncChannels(r.Context())
			}
			if err != nil {
				logger.Error("directory_sync_error", "kind", kind, "error", err.Error())
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "report": report})
		}
	}
	mux.HandleFunc("/api/fetch-clickup-data", syncHandler("lists"))
	mux.HandleFunc("/api/fetch-channels", syncHandler("channels"))

	mux.HandleFunc("/api/deliveries", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(r, authToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if dispatcher == nil || dispatcher.Activity == nil {
			http.Error(w, "delivery log is unavailable", http.StatusServiceUnavailable)
			return
		}
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			item, ok := dispatcher.Activity.Get(id)
			if !ok {
				http.Error(w, "delivery not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		source := Source(strings.TrimSpace(r.URL.Query().Get("source")))
		writeJSON(w, http.StatusOK, map[string]any{"items": dispatcher.Activity.List(source, limit)})
	})
}

type ServerOptions struct {
	Listen string
	Routes RoutesOptions
}

func StartServer(ctx context.Context, logger *slog.Logger, opts ServerOptions) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	listen := strings.TrimSpace(opts.Listen)
	if listen == "" {
		return nil, errors.New("empty server listen address")
	}
	if opts.Routes.Logger == nil {
		opts.Routes.Logger = logger
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, opts.Routes)

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay_server_error", "addr", listen, "error", err.Error())
		}
	}()

	logger.Info("relay_server_start",
		"addr", ln.Addr().String(),
		"auth", strings.TrimSpace(opts.Routes.AuthToken) != "",
		"clickup_signature", strings.TrimSpace(opts.Routes.ClickUpWebhookSecret) != "",
		"slack_signature", strings.TrimSpace(opts.Routes.SlackSigningSecret) != "",
	)
	return srv, nil
}

func writeResult(w http.ResponseWriter, status int, res Result) {
	payload := map[string]any{"outcome": res.Outcome}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func authorized(r *http.Request, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
