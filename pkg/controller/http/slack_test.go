package http_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/ackbot/pkg/controller/http"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/repository/memory"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/slack-go/slack/slackevents"
)

const signingSecret = "test-signing-secret"

// computeSlackSignature computes the Slack signature for testing
func computeSlackSignature(secret, timestamp, body string) string {
	baseString := fmt.Sprintf("v0:%s:%s", timestamp, body)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(baseString))
	return "v0=" + hex.EncodeToString(h.Sum(nil))
}

func signedRequest(t *testing.T, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	gt.NoError(t, err).Required()

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", computeSlackSignature(signingSecret, timestamp, string(body)))
	return req
}

// stubSlackClient serves one message and records reminders
type stubSlackClient struct {
	mu       sync.Mutex
	messages map[string]*model.Message
	dms      []string
}

func newStubSlackClient() *stubSlackClient {
	return &stubSlackClient{messages: map[string]*model.Message{}}
}

func (s *stubSlackClient) GetMessage(ctx context.Context, ref model.MessageRef) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[ref.Key()], nil
}

func (s *stubSlackClient) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return nil, nil
}

func (s *stubSlackClient) AddReaction(ctx context.Context, ref model.MessageRef, emoji string) error {
	return nil
}

func (s *stubSlackClient) GetPermalink(ctx context.Context, ref model.MessageRef) (string, error) {
	return "https://example.slack.com/archives/" + ref.Channel, nil
}

func (s *stubSlackClient) PostDirectMessage(ctx context.Context, userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dms = append(s.dms, userID)
	return nil
}

func (s *stubSlackClient) SelfIdentity(ctx context.Context) (string, error) {
	return "UBOT", nil
}

func (s *stubSlackClient) dmCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dms)
}

func mentioning(ref model.MessageRef, users ...string) *model.Message {
	var elements []model.Block
	for _, u := range users {
		elements = append(elements, model.UserBlock{UserID: u})
	}
	return &model.Message{
		Ref:  ref,
		User: "U000",
		Blocks: []model.Block{
			model.RichTextBlock{Elements: []model.Block{model.RichTextSectionBlock{Elements: elements}}},
		},
	}
}

func newUseCases(t *testing.T, client *stubSlackClient) (*usecase.UseCases, *memory.Memory) {
	t.Helper()
	queue := memory.New()
	uc, err := usecase.New(client, queue)
	gt.NoError(t, err).Required()
	return uc, queue
}

func TestVerifySlackSignature(t *testing.T) {
	body := []byte(`{"type":"url_verification","challenge":"test"}`)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("valid signature", func(t *testing.T) {
		err := httpctrl.VerifySlackSignature(signingSecret, now, computeSlackSignature(signingSecret, now, string(body)), body)
		gt.NoError(t, err)
	})

	testCases := map[string]struct {
		timestamp string
		signature string
	}{
		"invalid signature": {
			timestamp: now,
			signature: "v0=invalid_signature",
		},
		"missing timestamp": {
			timestamp: "",
			signature: computeSlackSignature(signingSecret, "123456", string(body)),
		},
		"missing signature": {
			timestamp: now,
			signature: "",
		},
		"timestamp too old": {
			timestamp: strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10),
			signature: computeSlackSignature(signingSecret, strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10), string(body)),
		},
		"invalid timestamp format": {
			timestamp: "not-a-number",
			signature: computeSlackSignature(signingSecret, "not-a-number", string(body)),
		},
		"wrong secret": {
			timestamp: now,
			signature: computeSlackSignature("wrong-secret", now, string(body)),
		},
		"different body": {
			timestamp: now,
			signature: computeSlackSignature(signingSecret, now, "different body"),
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Error(t, httpctrl.VerifySlackSignature(signingSecret, tc.timestamp, tc.signature, body))
		})
	}
}

func TestSlackSignatureMiddleware(t *testing.T) {
	body := []byte(`{"type":"url_verification","challenge":"test"}`)

	t.Run("restores request body for next handler", func(t *testing.T) {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/hooks/slack/event", bytes.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", timestamp)
		req.Header.Set("X-Slack-Signature", computeSlackSignature(signingSecret, timestamp, string(body)))
		rec := httptest.NewRecorder()

		var receivedBody []byte
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			receivedBody, err = io.ReadAll(r.Body)
			gt.NoError(t, err)
			w.WriteHeader(http.StatusOK)
		})

		httpctrl.SlackSignatureMiddleware(signingSecret)(next).ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.Value(t, string(receivedBody)).Equal(string(body))
	})

	t.Run("does not call next handler when signature is invalid", func(t *testing.T) {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/hooks/slack/event", bytes.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", timestamp)
		req.Header.Set("X-Slack-Signature", "v0=invalid")
		rec := httptest.NewRecorder()

		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
		})

		httpctrl.SlackSignatureMiddleware(signingSecret)(next).ServeHTTP(rec, req)
		gt.Bool(t, nextCalled).False()
		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})
}

func TestSlackWebhookHandler_URLVerification(t *testing.T) {
	uc, _ := newUseCases(t, newStubSlackClient())
	srv := httpctrl.New(httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), signingSecret))

	req := signedRequest(t, "/hooks/slack/event", map[string]any{
		"type":      "url_verification",
		"challenge": "test-challenge-token",
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	gt.Value(t, rec.Code).Equal(http.StatusOK)
	gt.Value(t, rec.Body.String()).Equal("test-challenge-token")
}

func TestSlackWebhookHandler_AppMention(t *testing.T) {
	client := newStubSlackClient()
	ref := model.NewMessageRef("C123", "1700000000.000100")
	client.messages[ref.Key()] = mentioning(ref, "UBOT", "U001")

	uc, queue := newUseCases(t, client)
	srv := httpctrl.New(httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), signingSecret))

	req := signedRequest(t, "/hooks/slack/event", map[string]any{
		"token":      "test-token",
		"team_id":    "T123",
		"api_app_id": "A123",
		"type":       "event_callback",
		"event": map[string]any{
			"type":     "app_mention",
			"user":     "U000",
			"text":     "<@UBOT> <@U001> please ack",
			"ts":       ref.Timestamp,
			"channel":  ref.Channel,
			"event_ts": ref.Timestamp,
		},
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	// Allow async processing to complete
	var entry *model.QueueEntry
	for range 50 {
		var err error
		entry, err = queue.Score(context.Background(), ref)
		gt.NoError(t, err).Required()
		if entry != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	gt.Value(t, entry).NotNil()
	gt.Number(t, client.dmCount()).Equal(1)
}

func TestSlackWebhookHandler_InvalidSignature(t *testing.T) {
	uc, _ := newUseCases(t, newStubSlackClient())
	srv := httpctrl.New(httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), signingSecret))

	req := signedRequest(t, "/hooks/slack/event", map[string]any{"type": "url_verification"})
	req.Header.Set("X-Slack-Signature", "v0=invalid_signature")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
}

func TestSlackWebhookHandler_ReactionCompletesCheck(t *testing.T) {
	client := newStubSlackClient()
	ref := model.NewMessageRef("C123", "1700000000.000200")
	msg := mentioning(ref, "U001")
	msg.Reactions = []model.Reaction{{Name: "eyes", Users: []string{"U001"}}}
	client.messages[ref.Key()] = msg

	uc, queue := newUseCases(t, client)
	ctx := context.Background()
	gt.NoError(t, queue.Upsert(ctx, ref, time.Now().Add(time.Hour))).Required()
	srv := httpctrl.New(httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), signingSecret))

	req := signedRequest(t, "/hooks/slack/event", map[string]any{
		"token":      "test-token",
		"team_id":    "T123",
		"api_app_id": "A123",
		"type":       "event_callback",
		"event_id":   "Ev123",
		"event": map[string]any{
			"type":     "reaction_added",
			"user":     "U001",
			"reaction": "eyes",
			"item": map[string]any{
				"type":    "message",
				"channel": ref.Channel,
				"ts":      ref.Timestamp,
			},
			"event_ts": "1700000001.000000",
		},
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var entry *model.QueueEntry
	for range 50 {
		var err error
		entry, err = queue.Score(ctx, ref)
		gt.NoError(t, err).Required()
		if entry == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	gt.Value(t, entry).Nil()
	gt.Number(t, client.dmCount()).Equal(0)
}

func TestSlackWebhookHandler_RequestTypes(t *testing.T) {
	uc, _ := newUseCases(t, newStubSlackClient())
	srv := httpctrl.New(httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), signingSecret))

	testCases := map[string]struct {
		payload map[string]any
		status  int
	}{
		"app_rate_limited is acknowledged": {
			payload: map[string]any{
				"token":               "test-token",
				"type":                "app_rate_limited",
				"team_id":             "T123",
				"minute_rate_limited": 1518467820,
				"api_app_id":          "A123",
			},
			status: http.StatusOK,
		},
		"unsupported type is rejected": {
			payload: map[string]any{"token": "test-token", "type": "block_actions"},
			status:  http.StatusBadRequest,
		},
		"malformed callback is rejected": {
			payload: map[string]any{"token": "test-token", "type": "event_callback", "event": "not-an-object"},
			status:  http.StatusBadRequest,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, signedRequest(t, "/hooks/slack/event", tc.payload))
			gt.Value(t, rec.Code).Equal(tc.status)
		})
	}
}

func TestEventAttrs(t *testing.T) {
	raw := `{
		"token": "test-token",
		"team_id": "T123",
		"type": "event_callback",
		"event_id": "Ev456",
		"event": {
			"type": "reaction_added",
			"user": "U001",
			"reaction": "eyes",
			"item": {"type": "message", "channel": "C123", "ts": "1700000000.000200"},
			"event_ts": "1700000001.000000"
		}
	}`
	event, err := slackevents.ParseEvent(json.RawMessage(raw), slackevents.OptionNoVerifyToken())
	gt.NoError(t, err).Required()

	attrs := map[string]any{}
	list := httpctrl.EventAttrs(&event)
	for i := 0; i+1 < len(list); i += 2 {
		attrs[list[i].(string)] = list[i+1]
	}

	gt.Value(t, attrs["inner_type"]).Equal(any("reaction_added"))
	gt.Value(t, attrs["event_id"]).Equal(any("Ev456"))
	gt.Value(t, attrs["channel"]).Equal(any("C123"))
	gt.Value(t, attrs["ts"]).Equal(any("1700000000.000200"))
	gt.Value(t, attrs["reaction"]).Equal(any("eyes"))
}
