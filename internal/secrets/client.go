package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// azureSecretClient is a narrow REST client over a Key Vault-shaped secret
// manager endpoint, authenticated via azcore.TokenCredential. It implements
// SecretClient without depending on the full azsecrets SDK, which the
// retrieval pack does not vendor.
type azureSecretClient struct {
	baseURL string
	cred    azcore.TokenCredential
	http    *http.Client
}

func newAzureSecretClient(baseURL string, cred azcore.TokenCredential) *azureSecretClient {
	return &azureSecretClient{
		baseURL: baseURL,
		cred:    cred,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

const tokenScope = "https://vault.azure.net/.default"

func (c *azureSecretClient) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{tokenScope}})
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}

func (c *azureSecretClient) GetSecret(ctx context.Context, name string) ([]byte, error) {
	url := fmt.Sprintf("%s/secrets/%s?api-version=7.4", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching secret %q", resp.StatusCode, name)
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode secret response: %w", err)
	}
	return []byte(body.Value), nil
}

func (c *azureSecretClient) ListSecretNames(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/secrets?api-version=7.4", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d listing secrets", resp.StatusCode)
	}

	var body struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode secret list response: %w", err)
	}
	names := make([]string, 0, len(body.Value))
	for _, v := range body.Value {
		names = append(names, lastPathSegment(v.ID))
	}
	return names, nil
}

func lastPathSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
