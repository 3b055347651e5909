package secret_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ackbot/pkg/service/secret"
)

func TestResourceName(t *testing.T) {
	testCases := []struct {
		name      string
		projectID string
		input     string
		want      string
		wantErr   bool
	}{
		{name: "bare id", projectID: "my-proj", input: "slack-token", want: "projects/my-proj/secrets/slack-token/versions/latest"},
		{name: "full resource", projectID: "", input: "projects/other/secrets/slack-token/versions/3", want: "projects/other/secrets/slack-token/versions/3"},
		{name: "bare id without project", projectID: "", input: "slack-token", wantErr: true},
		{name: "empty", projectID: "my-proj", input: "", wantErr: true},
		{name: "partial path", projectID: "my-proj", input: "secrets/slack-token", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := secret.ResourceName(tc.projectID, tc.input)
			if tc.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tc.want)
		})
	}
}

func TestManager_Load(t *testing.T) {
	projectID := os.Getenv("TEST_SECRET_PROJECT_ID")
	name := os.Getenv("TEST_SECRET_NAME")
	if projectID == "" || name == "" {
		t.Skip("TEST_SECRET_PROJECT_ID and TEST_SECRET_NAME are required")
	}

	ctx := context.Background()
	m, err := secret.New(ctx, projectID)
	gt.NoError(t, err).Required()
	defer func() { _ = m.Close() }()

	value, err := m.Load(ctx, name)
	gt.NoError(t, err).Required()
	gt.String(t, value).NotEqual("")
}
