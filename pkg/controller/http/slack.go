package http

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
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/secmon-lab/ackbot/pkg/utils/async"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
	"github.com/slack-go/slack/slackevents"
)

// maxRequestAge bounds how old X-Slack-Request-Timestamp may be
const maxRequestAge = 5 * time.Minute

// verifySlackSignature checks the v0 HMAC-SHA256 signature Slack attaches to every request
func verifySlackSignature(signingSecret, timestamp, signature string, body []byte) error {
	if timestamp == "" {
		return goerr.New("missing timestamp")
	}
	if signature == "" {
		return goerr.New("missing signature")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp", goerr.V("timestamp", timestamp))
	}

	age := time.Since(time.Unix(ts, 0))
	if age > maxRequestAge {
		return goerr.New("timestamp too old", goerr.V("timestamp", timestamp), goerr.V("age", age.String()))
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	if _, err := fmt.Fprintf(mac, "v0:%s:%s", timestamp, body); err != nil {
		return goerr.Wrap(err, "failed to compute HMAC")
	}
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return goerr.New("signature mismatch")
	}
	return nil
}

// maxEventBodySize caps the request body read before the signature is checked
const maxEventBodySize = 1 << 20

// SlackSignatureMiddleware rejects requests whose signature does not match signingSecret.
// The verified body is put back on the request for the next handler.
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBodySize))
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()

			timestamp := r.Header.Get("X-Slack-Request-Timestamp")
			signature := r.Header.Get("X-Slack-Signature")
			if err := verifySlackSignature(signingSecret, timestamp, signature, body); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "slack signature verification failed"), http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// SlackWebhookHandler receives Events API callbacks and hands mention and reaction events
// to the ack use case in the background.
type SlackWebhookHandler struct {
	slackUC *usecase.SlackUseCases
}

func NewSlackWebhookHandler(slackUC *usecase.SlackUseCases) *SlackWebhookHandler {
	return &SlackWebhookHandler{
		slackUC: slackUC,
	}
}

// ServeHTTP answers url_verification inline and acknowledges event_callback before the
// event is evaluated, since Slack retries callbacks not answered within three seconds.
// Any other request type is rejected with 400.
func (h *SlackWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse slack event"), http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to unmarshal challenge"), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge.Challenge)); err != nil {
			logging.From(ctx).Error("failed to write challenge response", "error", err)
		}

	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)

		attrs := eventAttrs(&event)
		logging.From(ctx).Info("received slack event", attrs...)

		async.Dispatch(ctx, "slack_event", func(ctx context.Context) error {
			if err := h.slackUC.HandleSlackEvent(ctx, &event); err != nil {
				return goerr.Wrap(err, "failed to handle slack event", goerr.V("inner_type", event.InnerEvent.Type))
			}
			return nil
		}, attrs...)

	case slackevents.AppRateLimited:
		// Slack has paused deliveries; pending checks are picked up by the sweep
		logging.From(ctx).Warn("slack event deliveries are rate limited", "team_id", event.TeamID)
		w.WriteHeader(http.StatusOK)

	default:
		errutil.HandleHTTP(ctx, w, goerr.New("unsupported slack request type", goerr.V("type", event.Type)), http.StatusBadRequest)
	}
}

// eventAttrs returns log attributes locating the message an event is about
func eventAttrs(event *slackevents.EventsAPIEvent) []any {
	attrs := []any{"inner_type", event.InnerEvent.Type, "team_id", event.TeamID}
	if cb, ok := event.Data.(*slackevents.EventsAPICallbackEvent); ok {
		attrs = append(attrs, "event_id", cb.EventID)
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		attrs = append(attrs, "channel", ev.Channel, "ts", ev.TimeStamp, "thread_ts", ev.ThreadTimeStamp)
	case *slackevents.ReactionAddedEvent:
		attrs = append(attrs, "channel", ev.Item.Channel, "ts", ev.Item.Timestamp, "reaction", ev.Reaction)
	case *slackevents.ReactionRemovedEvent:
		attrs = append(attrs, "channel", ev.Item.Channel, "ts", ev.Item.Timestamp, "reaction", ev.Reaction)
	}
	return attrs
}
