// Package slackclient wraps the Slack Web API, Events API and Socket Mode for
// the relay.
package slackclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/relay"
	"github.com/slack-go/slack"
)

const DefaultBaseURL = "https://slack.com/api/"

type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	BotToken   string
	AppToken   string
}

type Client struct {
	bot      *slack.Client
	app      *slack.Client
	hasApp   bool
	mu       sync.Mutex
	userName map[string]string
}

var (
	_ relay.ChatSender        = (*Client)(nil)
	_ directory.ChannelSource = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	botToken := strings.TrimSpace(opts.BotToken)
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		bot:      slack.New(botToken, slack.OptionAPIURL(baseURL), slack.OptionHTTPClient(httpClient)),
		userName: make(map[string]string),
	}
	if appToken := strings.TrimSpace(opts.AppToken); appToken != "" {
		c.app = slack.New(botToken, slack.OptionAppLevelToken(appToken), slack.OptionAPIURL(baseURL), slack.OptionHTTPClient(httpClient))
		c.hasApp = true
	}
	return c, nil
}

// Identity is the relay's own bot account, used to recognise its messages.
type Identity struct {
	TeamID string
	UserID string
	BotID  string
}

func (c *Client) AuthTest(ctx context.Context) (Identity, error) {
	resp, err := c.bot.AuthTestContext(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("slack auth.test: %w", err)
	}
	return Identity{
		TeamID: strings.TrimSpace(resp.TeamID),
		UserID: strings.TrimSpace(resp.UserID),
		BotID:  strings.TrimSpace(resp.BotID),
	}, nil
}

// SendChannelMessage posts msg as one coloured attachment and returns its ts.
func (c *Client) SendChannelMessage(ctx context.Context, channelID string, msg relay.ChatMessage, threadToken string) (string, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", fmt.Errorf("channel_id is required")
	}
	opts := []slack.MsgOption{
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionAttachments(buildAttachment(msg)),
	}
	if threadToken = strings.TrimSpace(threadToken); threadToken != "" {
		opts = append(opts, slack.MsgOptionTS(threadToken))
	}

	var ts string
	err := withRetry(ctx, true, func() error {
		_, posted, err := c.bot.PostMessageContext(ctx, channelID, opts...)
		ts = posted
		return err
	})
	if err != nil {
		return "", fmt.Errorf("slack chat.postMessage: %w", err)
	}
	return strings.TrimSpace(ts), nil
}

func buildAttachment(msg relay.ChatMessage) slack.Attachment {
	blocks := make([]slack.Block, 0, len(msg.Sections))
	for _, section := range msg.Sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		text := slack.NewTextBlockObject(slack.MarkdownType, section, false, false)
		blocks = append(blocks, slack.NewSectionBlock(text, nil, nil))
	}
	return slack.Attachment{
		Color:    msg.Color,
		Fallback: msg.Text,
		Blocks:   slack.Blocks{BlockSet: blocks},
	}
}

// ListChannels pages through public and private channels, archived included,
// so the sync can count what it skips.
func (c *Client) ListChannels(ctx context.Context) ([]directory.RemoteChannel, error) {
	var out []directory.RemoteChannel
	cursor := ""
	for {
		var (
			page []slack.Channel
			next string
		)
		err := withRetry(ctx, false, func() error {
			var err error
			page, next, err = c.bot.GetConversationsContext(ctx, &slack.GetConversationsParameters{
				Cursor: cursor,
				Limit:  200,
				Types:  []string{"public_channel", "private_channel"},
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("slack conversations.list: %w", err)
		}
		for _, ch := range page {
			out = append(out, directory.RemoteChannel{
				ID:       ch.ID,
				Name:     ch.Name,
				Archived: ch.IsArchived,
			})
		}
		cursor = strings.TrimSpace(next)
		if cursor == "" {
			return out, nil
		}
	}
}

// UserName resolves a user id to a display name, caching hits. It falls back
// to the id when the lookup fails.
func (c *Client) UserName(ctx context.Context, userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	c.mu.Lock()
	name, ok := c.userName[userID]
	c.mu.Unlock()
	if ok {
		return name
	}
	user, err := c.bot.GetUserInfoContext(ctx, userID)
	if err != nil || user == nil {
		return userID
	}
	name = firstNonEmpty(user.Profile.DisplayName, user.RealName, user.Name, userID)
	c.mu.Lock()
	c.userName[userID] = name
	c.mu.Unlock()
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// withRetry retries rate-limited calls after Retry-After. Reads are also
// retried on 5xx with a short backoff; writes are not, since the server may
// have applied them.
func withRetry(ctx context.Context, write bool, call func() error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if attempt >= maxAttempts {
			break
		}
		wait, retryable := retryDelay(lastErr, attempt, write)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func retryDelay(err error, attempt int, write bool) (time.Duration, bool) {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		if rl.RetryAfter <= 0 {
			return time.Second, true
		}
		return rl.RetryAfter, true
	}
	if write {
		return 0, false
	}
	var se slack.StatusCodeError
	if errors.As(err, &se) && se.Code >= 500 && se.Code <= 599 {
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	}
	return 0, false
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
