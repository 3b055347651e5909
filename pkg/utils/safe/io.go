package safe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/secmon-lab/ackbot/pkg/utils/logging"
)

// Close closes closer and logs the error if any. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}

// Write writes data to w and logs the error if any. Used after response headers are committed.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("Failed to write", slog.Any("error", err))
	}
}

// WriteJSON encodes v as indented JSON into w and logs the error if any
func WriteJSON(ctx context.Context, w io.Writer, v any) {
	if w == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logging.From(ctx).Error("Failed to encode JSON", slog.Any("error", err))
	}
}
