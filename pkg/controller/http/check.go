package http

import (
	"net/http"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
	"github.com/secmon-lab/ackbot/pkg/utils/safe"
)

// CheckHandler runs one sweep of the retry queue per request and returns its result
type CheckHandler struct {
	sweepUC *usecase.SweepUseCase
}

func NewCheckHandler(sweepUC *usecase.SweepUseCase) *CheckHandler {
	return &CheckHandler{
		sweepUC: sweepUC,
	}
}

// ServeHTTP sweeps synchronously. The query parameter all=true evaluates every queued entry.
func (h *CheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var opts usecase.SweepOptions
	if v := r.URL.Query().Get("all"); v != "" {
		all, err := strconv.ParseBool(v)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid all parameter", goerr.V("all", v)), http.StatusBadRequest)
			return
		}
		opts.All = all
	}

	result, err := h.sweepUC.Sweep(ctx, opts)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "sweep failed"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	safe.WriteJSON(ctx, w, result)
}
