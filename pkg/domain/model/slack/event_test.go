package slack_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/domain/model/slack"
	"github.com/slack-go/slack/slackevents"
)

func callback(data any) *slackevents.EventsAPIEvent {
	return &slackevents.EventsAPIEvent{
		Type:   slackevents.CallbackEvent,
		TeamID: "T001",
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: data,
		},
	}
}

func TestNewEvent(t *testing.T) {
	t.Run("app mention", func(t *testing.T) {
		ev := slack.NewEvent(callback(&slackevents.AppMentionEvent{
			User:      "U001",
			Channel:   "C001",
			TimeStamp: "1700000000.000100",
		}))
		gt.Value(t, ev).NotNil()
		gt.Value(t, ev.Kind()).Equal(slack.EventKindMention)
		gt.Value(t, ev.Ref()).Equal(model.NewMessageRef("C001", "1700000000.000100"))
		gt.Value(t, ev.UserID()).Equal("U001")
		gt.Value(t, ev.TeamID()).Equal("T001")
		gt.Bool(t, ev.IsReaction()).False()
	})

	t.Run("reaction added on message", func(t *testing.T) {
		ev := slack.NewEvent(callback(&slackevents.ReactionAddedEvent{
			User:     "U002",
			Reaction: "eyes",
			Item: slackevents.Item{
				Type:      "message",
				Channel:   "C001",
				Timestamp: "1700000000.000100",
			},
		}))
		gt.Value(t, ev).NotNil()
		gt.Value(t, ev.Kind()).Equal(slack.EventKindReactionAdded)
		gt.Value(t, ev.Ref().Key()).Equal("C001:1700000000.000100")
		gt.Value(t, ev.Reaction()).Equal("eyes")
		gt.Bool(t, ev.IsReaction()).True()
	})

	t.Run("reaction removed on message", func(t *testing.T) {
		ev := slack.NewEvent(callback(&slackevents.ReactionRemovedEvent{
			User:     "U002",
			Reaction: "eyes",
			Item: slackevents.Item{
				Type:      "message",
				Channel:   "C001",
				Timestamp: "1700000000.000100",
			},
		}))
		gt.Value(t, ev).NotNil()
		gt.Value(t, ev.Kind()).Equal(slack.EventKindReactionRemoved)
		gt.Bool(t, ev.IsReaction()).True()
	})

	t.Run("reaction on file is ignored", func(t *testing.T) {
		ev := slack.NewEvent(callback(&slackevents.ReactionAddedEvent{
			User:     "U002",
			Reaction: "eyes",
			Item:     slackevents.Item{Type: "file"},
		}))
		gt.Value(t, ev).Nil()
	})

	t.Run("unsupported inner event", func(t *testing.T) {
		ev := slack.NewEvent(callback(&slackevents.MessageEvent{Channel: "C001"}))
		gt.Value(t, ev).Nil()
	})

	t.Run("non callback event", func(t *testing.T) {
		ev := slack.NewEvent(&slackevents.EventsAPIEvent{Type: slackevents.URLVerification})
		gt.Value(t, ev).Nil()
	})
}
