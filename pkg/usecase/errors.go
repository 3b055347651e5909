package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// ErrMessageNotFound means the tracked message was deleted or cannot be read.
	// Evaluate treats it as a complete check.
	ErrMessageNotFound = goerr.New("message not found")
)

// Context keys for error values
const (
	MessageKey = "message"
	GroupIDKey = "group_id"
	UserIDKey  = "user_id"
)
