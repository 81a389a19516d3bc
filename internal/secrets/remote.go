package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// SecretClient is the minimal surface this package needs from an Azure Key
// Vault-shaped secret client, kept narrow so tests can fake it without
// pulling in the real SDK transport.
type SecretClient interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
	ListSecretNames(ctx context.Context) ([]string, error)
}

// RemoteBackend reads sector secrets from a remote secret manager at the
// configured address; the namespace and mount path are stored on the backend
// but are not part of the requests the client makes. It supports two
// authentication shapes: a static bearer token, or role-based two-step
// (client ID + client secret exchanged for a token via azidentity).
type RemoteBackend struct {
	client    SecretClient
	namespace string
	mount     string
	timeout   time.Duration
}

// RemoteConfig configures the remote backend's credentials and addressing.
type RemoteConfig struct {
	Address   string
	Token     string // static-token auth path
	TenantID  string // role-based two-step auth path
	ClientID  string
	ClientSecret string
	Namespace string
	MountPath string
	Timeout   time.Duration
}

// NewRemoteBackend builds the azidentity credential matching whichever auth
// shape cfg supplies and wraps it in a RemoteBackend. A static token takes
// precedence when both are configured.
func NewRemoteBackend(cfg RemoteConfig) (*RemoteBackend, error) {
	if cfg.Address == "" {
		return nil, internalerrors.Configuration("secrets: remote backend requires an address", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second // default secret-manager timeout
	}

	var cred azcore.TokenCredential
	switch {
	case cfg.Token != "":
		cred = staticTokenCredential{token: cfg.Token}
	case cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TenantID != "":
		c, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, internalerrors.Configuration("secrets: failed to build client-secret credential", err)
		}
		cred = c
	default:
		return nil, internalerrors.Configuration("secrets: remote backend requires a token or role_id/secret_id", nil)
	}

	client := newAzureSecretClient(cfg.Address, cred)
	return &RemoteBackend{client: client, namespace: cfg.Namespace, mount: cfg.MountPath, timeout: timeout}, nil
}

func (r *RemoteBackend) Name() string { return "remote" }

func (r *RemoteBackend) FetchAll(ctx context.Context) (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.client.ListSecretNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: list secret names: %w", err)
	}
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		value, err := r.client.GetSecret(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("secrets: get secret %q: %w", name, err)
		}
		out[normalizeSector(name)] = value
	}
	return out, nil
}

func (r *RemoteBackend) Fetch(ctx context.Context, sector string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	value, err := r.client.GetSecret(ctx, sector)
	if err != nil {
		return nil, fmt.Errorf("secrets: get secret %q: %w", sector, err)
	}
	return value, nil
}

// staticTokenCredential adapts a pre-shared bearer token to azcore.TokenCredential.
type staticTokenCredential struct {
	token string
}

func (s staticTokenCredential) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: s.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}
