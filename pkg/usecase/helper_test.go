package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

const botUserID = "UBOT"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// tsAt returns a Slack timestamp posted at t
func tsAt(t time.Time) string {
	return fmt.Sprintf("%d.000100", t.Unix())
}

type sentDM struct {
	UserID string
	Text   string
}

type reactionCall struct {
	Ref   model.MessageRef
	Emoji string
}

// mockSlackClient is a mock implementation of interfaces.SlackClient for testing
type mockSlackClient struct {
	getMessageFn       func(ctx context.Context, ref model.MessageRef) (*model.Message, error)
	listGroupMembersFn func(ctx context.Context, groupID string) ([]string, error)
	addReactionFn      func(ctx context.Context, ref model.MessageRef, emoji string) error
	getPermalinkFn     func(ctx context.Context, ref model.MessageRef) (string, error)
	postDMFn           func(ctx context.Context, userID, text string) error

	mu             sync.Mutex
	messages       map[string]*model.Message
	groups         map[string][]string
	getMessageCall int
	reactions      []reactionCall
	dms            []sentDM
}

func newMockSlackClient() *mockSlackClient {
	return &mockSlackClient{
		messages: map[string]*model.Message{},
		groups:   map[string][]string{},
	}
}

func (m *mockSlackClient) putMessage(msg *model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.Ref.Key()] = msg
}

func (m *mockSlackClient) GetMessage(ctx context.Context, ref model.MessageRef) (*model.Message, error) {
	m.mu.Lock()
	m.getMessageCall++
	msg := m.messages[ref.Key()]
	m.mu.Unlock()

	if m.getMessageFn != nil {
		return m.getMessageFn(ctx, ref)
	}
	return msg, nil
}

func (m *mockSlackClient) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if m.listGroupMembersFn != nil {
		return m.listGroupMembersFn(ctx, groupID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[groupID], nil
}

func (m *mockSlackClient) AddReaction(ctx context.Context, ref model.MessageRef, emoji string) error {
	m.mu.Lock()
	m.reactions = append(m.reactions, reactionCall{Ref: ref, Emoji: emoji})
	m.mu.Unlock()

	if m.addReactionFn != nil {
		return m.addReactionFn(ctx, ref, emoji)
	}
	return nil
}

func (m *mockSlackClient) GetPermalink(ctx context.Context, ref model.MessageRef) (string, error) {
	if m.getPermalinkFn != nil {
		return m.getPermalinkFn(ctx, ref)
	}
	return "https://example.slack.com/archives/" + ref.Channel + "/p" + ref.Timestamp, nil
}

func (m *mockSlackClient) PostDirectMessage(ctx context.Context, userID, text string) error {
	if m.postDMFn != nil {
		if err := m.postDMFn(ctx, userID, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dms = append(m.dms, sentDM{UserID: userID, Text: text})
	return nil
}

func (m *mockSlackClient) SelfIdentity(ctx context.Context) (string, error) {
	return botUserID, nil
}

func (m *mockSlackClient) dmUsers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := model.NewUserSet()
	for _, dm := range m.dms {
		users.Add(dm.UserID)
	}
	return users.Sorted()
}

func (m *mockSlackClient) dmCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dms)
}

func (m *mockSlackClient) getMessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getMessageCall
}

// newMessage builds a message mentioning users and groups in one rich text section
func newMessage(ref model.MessageRef, author string, users, groups []string, reactions ...model.Reaction) *model.Message {
	var elements []model.Block
	elements = append(elements, model.TextBlock{Text: "please check "})
	for _, u := range users {
		elements = append(elements, model.UserBlock{UserID: u})
	}
	for _, g := range groups {
		elements = append(elements, model.UserGroupBlock{UserGroupID: g})
	}

	return &model.Message{
		Ref:  ref,
		User: author,
		Blocks: []model.Block{
			model.RichTextBlock{
				BlockID:  "b1",
				Elements: []model.Block{model.RichTextSectionBlock{Elements: elements}},
			},
		},
		Reactions: reactions,
	}
}
