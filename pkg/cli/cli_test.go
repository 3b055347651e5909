package cli_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ackbot/pkg/cli"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

func TestResolveRef(t *testing.T) {
	t.Run("channel and ts", func(t *testing.T) {
		ref, err := cli.ResolveRef("C001", "1700000000.000100", "")
		gt.NoError(t, err).Required()
		gt.Value(t, ref).Equal(model.NewMessageRef("C001", "1700000000.000100"))
	})

	t.Run("permalink", func(t *testing.T) {
		ref, err := cli.ResolveRef("", "", "https://example.slack.com/archives/C001/p1700000000000100")
		gt.NoError(t, err).Required()
		gt.Value(t, ref).Equal(model.NewMessageRef("C001", "1700000000.000100"))
	})

	t.Run("permalink conflicts with channel", func(t *testing.T) {
		_, err := cli.ResolveRef("C001", "", "https://example.slack.com/archives/C001/p1700000000000100")
		gt.Error(t, err)
	})

	t.Run("missing ts", func(t *testing.T) {
		_, err := cli.ResolveRef("C001", "", "")
		gt.Error(t, err)
	})
}

func TestPrintResults(t *testing.T) {
	color.NoColor = true

	t.Run("sweep", func(t *testing.T) {
		var buf bytes.Buffer
		cli.PrintSweepResult(&buf, &model.SweepResult{
			SweepID:    "0190-sweep",
			StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Complete:   []model.MessageRef{model.NewMessageRef("C001", "1.000100")},
			Incomplete: []model.MessageRef{model.NewMessageRef("C002", "2.000100")},
		})

		out := buf.String()
		gt.String(t, out).Contains("0190-sweep")
		gt.String(t, out).Contains("C001:1.000100")
		gt.String(t, out).Contains("C002:2.000100")
	})

	t.Run("incomplete evaluation", func(t *testing.T) {
		var buf bytes.Buffer
		cli.PrintEvaluateResult(&buf, &model.EvaluateResult{
			Ref:         model.NewMessageRef("C001", "1.000100"),
			Outstanding: []string{"U001", "U002"},
			Reminded:    2,
		})
		gt.String(t, buf.String()).Contains("U001, U002")
		gt.String(t, buf.String()).Contains("reminders sent: 2")
	})

	t.Run("deleted message", func(t *testing.T) {
		var buf bytes.Buffer
		cli.PrintEvaluateResult(&buf, &model.EvaluateResult{
			Ref:        model.NewMessageRef("C001", "1.000100"),
			IsComplete: true,
			NotFound:   true,
		})
		gt.String(t, buf.String()).Contains("not found")
	})
}
