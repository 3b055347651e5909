package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
)

// Dispatch runs handler in a new goroutine. The handler context outlives the caller's
// cancellation but keeps its values, and its logger carries task plus attrs.
// Errors and panics are logged and reported through errutil.
func Dispatch(ctx context.Context, task string, handler func(ctx context.Context) error, attrs ...any) {
	logger := logging.From(ctx).With(append([]any{"task", task}, attrs...)...)
	bgCtx := logging.With(context.WithoutCancel(ctx), logger)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := goerr.New("panic in dispatched task", goerr.V("task", task), goerr.V("panic", r))
				_ = errutil.Handle(bgCtx, err, "dispatched task panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, goerr.Wrap(err, "dispatched task failed", goerr.V("task", task)), "dispatched task failed")
		}
	}()
}
