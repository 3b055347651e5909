package model

import (
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ParsePermalink extracts the message reference from a Slack permalink such as
// https://example.slack.com/archives/C0123/p1700000000000100. Thread permalinks carrying
// thread_ts still point at the linked reply itself.
func ParsePermalink(permalink string) (MessageRef, error) {
	u, err := url.Parse(permalink)
	if err != nil {
		return MessageRef{}, goerr.Wrap(err, "invalid permalink", goerr.V("permalink", permalink))
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "archives" {
		return MessageRef{}, goerr.New("not a message permalink", goerr.V("permalink", permalink))
	}

	digits, ok := strings.CutPrefix(parts[2], "p")
	if !ok || len(digits) <= 6 {
		return MessageRef{}, goerr.New("invalid message id in permalink", goerr.V("permalink", permalink))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return MessageRef{}, goerr.New("invalid message id in permalink", goerr.V("permalink", permalink))
		}
	}

	ref := NewMessageRef(parts[1], digits[:len(digits)-6]+"."+digits[len(digits)-6:])
	if err := ref.Validate(); err != nil {
		return MessageRef{}, goerr.Wrap(err, "invalid permalink", goerr.V("permalink", permalink))
	}
	return ref, nil
}
