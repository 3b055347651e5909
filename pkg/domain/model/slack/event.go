package slack

import (
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/slack-go/slack/slackevents"
)

type EventKind string

const (
	EventKindMention         EventKind = "mention"
	EventKindReactionAdded   EventKind = "reaction_added"
	EventKindReactionRemoved EventKind = "reaction_removed"
)

// itemTypeMessage is the only reaction item type that can be tracked
const itemTypeMessage = "message"

// Event is an inbound Slack event reduced to the message it concerns
type Event struct {
	kind     EventKind
	ref      model.MessageRef
	userID   string
	reaction string
	teamID   string
}

// NewEvent converts a callback event. It returns nil for events that do not concern a
// trackable message.
func NewEvent(ev *slackevents.EventsAPIEvent) *Event {
	if ev == nil || ev.Type != slackevents.CallbackEvent {
		return nil
	}

	switch evt := ev.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		return &Event{
			kind:   EventKindMention,
			ref:    model.NewMessageRef(evt.Channel, evt.TimeStamp),
			userID: evt.User,
			teamID: ev.TeamID,
		}

	case *slackevents.ReactionAddedEvent:
		if evt.Item.Type != itemTypeMessage {
			return nil
		}
		return &Event{
			kind:     EventKindReactionAdded,
			ref:      model.NewMessageRef(evt.Item.Channel, evt.Item.Timestamp),
			userID:   evt.User,
			reaction: evt.Reaction,
			teamID:   ev.TeamID,
		}

	case *slackevents.ReactionRemovedEvent:
		if evt.Item.Type != itemTypeMessage {
			return nil
		}
		return &Event{
			kind:     EventKindReactionRemoved,
			ref:      model.NewMessageRef(evt.Item.Channel, evt.Item.Timestamp),
			userID:   evt.User,
			reaction: evt.Reaction,
			teamID:   ev.TeamID,
		}

	default:
		return nil
	}
}

// Getters
func (e *Event) Kind() EventKind       { return e.kind }
func (e *Event) Ref() model.MessageRef { return e.ref }
func (e *Event) UserID() string        { return e.userID }
func (e *Event) Reaction() string      { return e.reaction }
func (e *Event) TeamID() string        { return e.teamID }

// IsReaction reports whether the event changes the reactions of a message
func (e *Event) IsReaction() bool {
	return e.kind == EventKindReactionAdded || e.kind == EventKindReactionRemoved
}
