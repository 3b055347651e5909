package secret

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
)

var _ interfaces.SecretLoader = &Manager{}

// Manager reads secrets from Google Cloud Secret Manager
type Manager struct {
	client    *secretmanager.Client
	projectID string
}

func New(ctx context.Context, projectID string) (*Manager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create secret manager client")
	}

	return &Manager{
		client:    client,
		projectID: projectID,
	}, nil
}

// Load returns the payload of the named secret. name is either a full
// resource name ("projects/p/secrets/s/versions/v") or a bare secret ID,
// which resolves to its latest version in the configured project.
func (m *Manager) Load(ctx context.Context, name string) (string, error) {
	resource, err := resourceName(m.projectID, name)
	if err != nil {
		return "", err
	}

	resp, err := m.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to access secret", goerr.V("name", resource))
	}

	value := string(resp.GetPayload().GetData())
	if value == "" {
		return "", goerr.New("secret is empty", goerr.V("name", resource))
	}

	return value, nil
}

func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func resourceName(projectID, name string) (string, error) {
	if name == "" {
		return "", goerr.New("secret name is empty")
	}
	if strings.HasPrefix(name, "projects/") {
		return name, nil
	}
	if strings.Contains(name, "/") {
		return "", goerr.New("secret name must be a bare ID or a full resource name", goerr.V("name", name))
	}
	if projectID == "" {
		return "", goerr.New("project ID is required for a bare secret ID", goerr.V("name", name))
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name), nil
}
