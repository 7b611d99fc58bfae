package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterPath is the engine endpoint that creates a default test
// account and returns its identity.
const RegisterPath = "/engine/auth/default"

// defaultRegisterTimeout bounds the registration request when the
// caller supplies no HTTP client.
const defaultRegisterTimeout = 30 * time.Second

// Register creates a fresh test account against the engine and returns
// its credentials. The account email is randomly generated, so repeated
// registrations never collide.
func Register(ctx context.Context, engineURL string, httpClient *http.Client) (*Credentials, error) {
	if engineURL == "" {
		return nil, fmt.Errorf("engine url is required for registration")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRegisterTimeout}
	}

	email := fmt.Sprintf("replay-%s@test.invalid", uuid.NewString()[:8])
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, fmt.Errorf("encoding registration request: %w", err)
	}

	url := strings.TrimSuffix(engineURL, "/") + RegisterPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registering test account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registration returned %s: %s", resp.Status, snippet)
	}

	var result struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding registration response: %w", err)
	}

	creds := &Credentials{
		UserID: result.UserID,
		Email:  email,
		Token:  result.Token,
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("registration response incomplete: %w", err)
	}
	return creds, nil
}
