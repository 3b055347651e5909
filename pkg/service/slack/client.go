package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for user group membership cache
	DefaultCacheTTL = 45 * time.Second

	// DefaultRetryMaxElapsed bounds how long a rate limited call is retried
	DefaultRetryMaxElapsed = 30 * time.Second
)

// ErrAlreadyReacted is returned by AddReaction when the bot already reacted with the emoji
var ErrAlreadyReacted = goerr.New("already reacted")

// Slack error codes meaning the message cannot be read by the bot
var inaccessibleErrors = map[string]bool{
	"channel_not_found": true,
	"not_in_channel":    true,
	"message_not_found": true,
	"thread_not_found":  true,
}

// cacheEntry holds cached group members with expiration
type cacheEntry struct {
	members   []string
	expiresAt time.Time
}

// client implements interfaces.SlackClient
type client struct {
	api      *slack.Client
	apiURL   string
	cacheTTL time.Duration

	retryMaxElapsed time.Duration
	retryInterval   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry

	selfMu sync.Mutex
	selfID string
}

var _ interfaces.SlackClient = &client{}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for user group membership cache. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithRetryMaxElapsed sets how long calls answered with HTTP 429 are retried. Zero disables retry.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *client) {
		c.retryMaxElapsed = d
	}
}

// WithAPIURL points the client at another Slack API endpoint. The URL must end with "/".
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiURL = url
	}
}

// New creates a new Slack client with the provided bot token
func New(token string, opts ...Option) (interfaces.SlackClient, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL:        DefaultCacheTTL,
		retryMaxElapsed: DefaultRetryMaxElapsed,
		retryInterval:   500 * time.Millisecond,
		cache:           make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	apiOpts := []slack.Option{
		slack.OptionHTTPClient(&bodyKeeper{base: &http.Client{}}),
	}
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

func slackErrorCode(err error) string {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return resp.Err
	}
	return ""
}

// withRetry runs op again while Slack answers with HTTP 429. The Retry-After hint
// is waited out before the next backoff interval. Other errors stop immediately.
func (c *client) withRetry(ctx context.Context, method string, op func() error) error {
	if c.retryMaxElapsed <= 0 {
		return op()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxElapsedTime = c.retryMaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		var rateLimited *slack.RateLimitedError
		if !errors.As(err, &rateLimited) {
			return backoff.Permanent(err)
		}

		logging.From(ctx).Warn("slack API rate limited", "method", method, "retry_after", rateLimited.RetryAfter)
		if rateLimited.RetryAfter > 0 {
			timer := time.NewTimer(rateLimited.RetryAfter)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-timer.C:
			}
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

type keptBodyKey struct{}

// keptBody receives the raw response body of the call made with its context
type keptBody struct {
	data []byte
}

func withKeptBody(ctx context.Context) (context.Context, *keptBody) {
	kb := &keptBody{}
	return context.WithValue(ctx, keptBodyKey{}, kb), kb
}

// bodyKeeper is the HTTP client handed to slack-go. For requests whose context carries a
// keptBody it copies the response body there, so blocks can be decoded from the original JSON.
type bodyKeeper struct {
	base *http.Client
}

func (b *bodyKeeper) Do(req *http.Request) (*http.Response, error) {
	resp, err := b.base.Do(req)
	if err != nil {
		return resp, err
	}

	kb, ok := req.Context().Value(keptBodyKey{}).(*keptBody)
	if !ok {
		return resp, nil
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	kb.data = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// rawBlocks returns the blocks JSON of the message with ts in a history or replies response
func rawBlocks(body []byte, ts string) json.RawMessage {
	var resp struct {
		Messages []struct {
			Timestamp string          `json:"ts"`
			Blocks    json.RawMessage `json:"blocks"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	for _, m := range resp.Messages {
		if m.Timestamp == ts {
			return m.Blocks
		}
	}
	return nil
}

// GetMessage looks the message up in channel history first and in its thread second.
// History returns the latest message at or before ts, so a different ts means the target
// is either gone or a thread reply.
func (c *client) GetMessage(ctx context.Context, ref model.MessageRef) (*model.Message, error) {
	historyCtx, historyBody := withKeptBody(ctx)
	var history *slack.GetConversationHistoryResponse
	err := c.withRetry(ctx, "conversations.history", func() error {
		var err error
		history, err = c.api.GetConversationHistoryContext(historyCtx, &slack.GetConversationHistoryParameters{
			ChannelID: ref.Channel,
			Latest:    ref.Timestamp,
			Limit:     1,
			Inclusive: true,
		})
		return err
	})
	if err != nil {
		if inaccessibleErrors[slackErrorCode(err)] {
			logging.From(ctx).Warn("message is not accessible", "ref", ref.Key(), "error", err.Error())
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get conversation history", goerr.V("ref", ref.Key()))
	}

	for _, msg := range history.Messages {
		if msg.Timestamp == ref.Timestamp {
			return toMessage(ref, msg, rawBlocks(historyBody.data, ref.Timestamp))
		}
	}

	repliesCtx, repliesBody := withKeptBody(ctx)
	var replies []slack.Message
	err = c.withRetry(ctx, "conversations.replies", func() error {
		var err error
		replies, _, _, err = c.api.GetConversationRepliesContext(repliesCtx, &slack.GetConversationRepliesParameters{
			ChannelID: ref.Channel,
			Timestamp: ref.Timestamp,
			Latest:    ref.Timestamp,
			Inclusive: true,
		})
		return err
	})
	if err != nil {
		if inaccessibleErrors[slackErrorCode(err)] {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get conversation replies", goerr.V("ref", ref.Key()))
	}

	for _, msg := range replies {
		if msg.Timestamp == ref.Timestamp {
			return toMessage(ref, msg, rawBlocks(repliesBody.data, ref.Timestamp))
		}
	}

	return nil, nil
}

// toMessage converts a slack-go message. Blocks are decoded from the original response JSON
// when it is available, since slack-go keeps only the type of block kinds it does not model.
func toMessage(ref model.MessageRef, msg slack.Message, raw json.RawMessage) (*model.Message, error) {
	if len(raw) == 0 {
		var err error
		raw, err = json.Marshal(msg.Blocks)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal message blocks", goerr.V("ref", ref.Key()))
		}
	}

	blocks, err := model.UnmarshalBlocks(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode message blocks", goerr.V("ref", ref.Key()))
	}

	reactions := make([]model.Reaction, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		reactions = append(reactions, model.Reaction{
			Name:  r.Name,
			Users: r.Users,
		})
	}

	return &model.Message{
		Ref:       ref,
		User:      msg.User,
		Text:      msg.Text,
		Blocks:    blocks,
		Reactions: reactions,
	}, nil
}

// ListGroupMembers retrieves user group members with caching
func (c *client) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.cache[groupID]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		return append([]string(nil), entry.members...), nil
	}

	var members []string
	err := c.withRetry(ctx, "usergroups.users.list", func() error {
		var err error
		members, err = c.api.GetUserGroupMembersContext(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user group members", goerr.V("group_id", groupID))
	}

	if c.cacheTTL > 0 {
		c.mu.Lock()
		c.cache[groupID] = cacheEntry{
			members:   append([]string(nil), members...),
			expiresAt: now.Add(c.cacheTTL),
		}
		c.mu.Unlock()
	}

	return members, nil
}

// AddReaction adds emoji to the message as the bot
func (c *client) AddReaction(ctx context.Context, ref model.MessageRef, emoji string) error {
	err := c.withRetry(ctx, "reactions.add", func() error {
		return c.api.AddReactionContext(ctx, emoji, slack.NewRefToMessage(ref.Channel, ref.Timestamp))
	})
	if err != nil {
		if slackErrorCode(err) == "already_reacted" {
			return goerr.Wrap(ErrAlreadyReacted, "reaction exists", goerr.V("ref", ref.Key()), goerr.V("emoji", emoji))
		}
		return goerr.Wrap(err, "failed to add reaction", goerr.V("ref", ref.Key()), goerr.V("emoji", emoji))
	}
	return nil
}

// GetPermalink returns a permanent URL of the message
func (c *client) GetPermalink(ctx context.Context, ref model.MessageRef) (string, error) {
	var link string
	err := c.withRetry(ctx, "chat.getPermalink", func() error {
		var err error
		link, err = c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
			Channel: ref.Channel,
			Ts:      ref.Timestamp,
		})
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to get permalink", goerr.V("ref", ref.Key()))
	}
	return link, nil
}

// PostDirectMessage posts text to the user's DM channel with the bot
func (c *client) PostDirectMessage(ctx context.Context, userID, text string) error {
	err := c.withRetry(ctx, "chat.postMessage", func() error {
		_, _, err := c.api.PostMessageContext(ctx, userID, slack.MsgOptionText(text, false))
		return err
	})
	if err != nil {
		return goerr.Wrap(err, "failed to post direct message", goerr.V("user_id", userID))
	}
	return nil
}

// SelfIdentity returns the bot user ID. The result is cached for the lifetime of the client.
func (c *client) SelfIdentity(ctx context.Context) (string, error) {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()

	if c.selfID != "" {
		return c.selfID, nil
	}

	var resp *slack.AuthTestResponse
	err := c.withRetry(ctx, "auth.test", func() error {
		var err error
		resp, err = c.api.AuthTestContext(ctx)
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call auth.test")
	}
	if resp.UserID == "" {
		return "", goerr.New("auth.test returned no user ID")
	}

	c.selfID = resp.UserID
	return c.selfID, nil
}
