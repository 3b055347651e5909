package interfaces

import (
	"context"

	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

// SlackClient is the subset of the Slack Web API used to track acknowledgements
type SlackClient interface {
	// GetMessage returns the message posted exactly at ref.Timestamp in ref.Channel.
	// It returns (nil, nil) when the message does not exist or is not accessible.
	GetMessage(ctx context.Context, ref model.MessageRef) (*model.Message, error)

	// ListGroupMembers returns the user IDs of a user group. An empty group is not an error.
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)

	// AddReaction adds emoji to the message on behalf of the bot
	AddReaction(ctx context.Context, ref model.MessageRef, emoji string) error

	// GetPermalink returns a URL pointing at the message
	GetPermalink(ctx context.Context, ref model.MessageRef) (string, error)

	// PostDirectMessage sends text to the user as a direct message
	PostDirectMessage(ctx context.Context, userID, text string) error

	// SelfIdentity returns the user ID of the bot itself
	SelfIdentity(ctx context.Context) (string, error)
}
