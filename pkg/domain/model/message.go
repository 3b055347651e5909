package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// MessageRef identifies a Slack message by channel and timestamp
type MessageRef struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
}

// NewMessageRef creates a MessageRef
func NewMessageRef(channel, timestamp string) MessageRef {
	return MessageRef{Channel: channel, Timestamp: timestamp}
}

// Key returns the retry queue key "channel:timestamp"
func (r MessageRef) Key() string {
	return r.Channel + ":" + r.Timestamp
}

func (r MessageRef) String() string {
	return r.Key()
}

// Validate checks both parts are present
func (r MessageRef) Validate() error {
	if r.Channel == "" {
		return goerr.New("channel is required", goerr.V("timestamp", r.Timestamp))
	}
	if r.Timestamp == "" {
		return goerr.New("timestamp is required", goerr.V("channel", r.Channel))
	}
	if strings.Contains(r.Channel, ":") {
		return goerr.New("channel must not contain ':'", goerr.V("channel", r.Channel))
	}
	return nil
}

// PostedAt converts the Slack timestamp ("1515449522.000016") to time.Time
func (r MessageRef) PostedAt() (time.Time, error) {
	sec, frac, _ := strings.Cut(r.Timestamp, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "invalid slack timestamp", goerr.V("timestamp", r.Timestamp))
	}

	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		usec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, goerr.Wrap(err, "invalid slack timestamp", goerr.V("timestamp", r.Timestamp))
		}
	}

	return time.Unix(s, usec*int64(time.Microsecond)), nil
}

// ParseMessageRef parses a queue key produced by MessageRef.Key
func ParseMessageRef(key string) (MessageRef, error) {
	channel, ts, ok := strings.Cut(key, ":")
	if !ok {
		return MessageRef{}, goerr.New("invalid message key", goerr.V("key", key))
	}
	ref := MessageRef{Channel: channel, Timestamp: ts}
	if err := ref.Validate(); err != nil {
		return MessageRef{}, goerr.Wrap(err, "invalid message key", goerr.V("key", key))
	}
	return ref, nil
}

// Reaction is one emoji on a message together with the users who applied it
type Reaction struct {
	Name  string
	Users []string
}

// Message is the subset of a Slack message needed to evaluate acknowledgements
type Message struct {
	Ref       MessageRef
	User      string
	Text      string
	Blocks    []Block
	Reactions []Reaction
}

// ReactedUsers returns the union of users over all reactions
func (m *Message) ReactedUsers() UserSet {
	users := NewUserSet()
	for _, r := range m.Reactions {
		users.Add(r.Users...)
	}
	return users
}
