package fireauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/go-fireauth/fireauth/sdk/id"
)

// localeHeader carries the locale for out-of-band-code emails.
const localeHeader = "X-Firebase-Locale"

// client is the stateless facade over the relying-party REST operations.
// It holds no session state; every call takes the resolved endpoint plus
// request fields and returns a parsed response or fails.
type client struct {
	endpoints Endpoints
	http      *http.Client
	logger    hclog.Logger
}

func newClient(c *Config) (*client, error) {
	const op = "fireauth.newClient"
	httpClient, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &client{
		endpoints: c.Endpoints(),
		http:      httpClient,
		logger:    logger,
	}, nil
}

// loginResponse is the verifyPassword payload.
type loginResponse struct {
	IDToken      IDToken      `json:"idToken"`
	RefreshToken RefreshToken `json:"refreshToken"`
	ExpiresIn    string       `json:"expiresIn"`
}

// refreshResponse is the secure-token exchange payload. Field names follow
// the OAuth convention rather than the relying-party one.
type refreshResponse struct {
	IDToken      IDToken      `json:"id_token"`
	RefreshToken RefreshToken `json:"refresh_token"`
	ExpiresIn    string       `json:"expires_in"`
}

// providerUser is one entry of the getAccountInfo users list.
type providerUser struct {
	LocalID       string `json:"localId"`
	DisplayName   string `json:"displayName"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	PhotoURL      string `json:"photoUrl"`
	Disabled      bool   `json:"disabled"`
}

type lookupResponse struct {
	Users []providerUser `json:"users"`
}

// updateResponse is the setAccountInfo payload.
type updateResponse struct {
	DisplayName  string       `json:"displayName"`
	PhotoURL     string       `json:"photoUrl"`
	ExpiresIn    string       `json:"expiresIn"`
	RefreshToken RefreshToken `json:"refreshToken"`
}

// login verifies the supplied credential fields. returnSecureToken is
// merged in so the provider issues a refresh token alongside the id token.
func (c *client) login(ctx context.Context, credentials map[string]interface{}) (*loginResponse, error) {
	const op = "client.login"
	body := map[string]interface{}{
		"returnSecureToken": true,
	}
	for k, v := range credentials {
		body[k] = v
	}
	var resp loginResponse
	if _, err := c.post(ctx, op, c.endpoints.Login, body, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

// refresh exchanges the stored refresh token for a fresh token pair.
func (c *client) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	const op = "client.refresh"
	body := map[string]interface{}{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	var resp refreshResponse
	if _, err := c.post(ctx, op, c.endpoints.Refresh, body, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

// lookup fetches the account record for the id token's subject.
func (c *client) lookup(ctx context.Context, idToken string) (*providerUser, error) {
	const op = "client.lookup"
	body := map[string]interface{}{
		"idToken": idToken,
	}
	var resp lookupResponse
	if _, err := c.post(ctx, op, c.endpoints.Lookup, body, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Users) == 0 {
		return nil, fmt.Errorf("%s: account info response contains no users: %w", op, ErrNotFound)
	}
	return &resp.Users[0], nil
}

// update posts arbitrary account fields to setAccountInfo and returns the
// parsed response along with the upstream status. Callers decide what a
// non-200 status means; see Provider.UpdateProfile.
func (c *client) update(ctx context.Context, fields map[string]interface{}) (*updateResponse, int, error) {
	const op = "client.update"
	var resp updateResponse
	status, err := c.post(ctx, op, c.endpoints.Update, fields, nil, &resp)
	if err != nil {
		return nil, status, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, status, nil
}

// sendOOBCode requests an out-of-band confirmation code email.
func (c *client) sendOOBCode(ctx context.Context, body map[string]interface{}, locale string) error {
	const op = "client.sendOOBCode"
	if locale == "" {
		locale = DefaultLocale
	}
	headers := map[string]string{localeHeader: locale}
	if _, err := c.post(ctx, op, c.endpoints.OOBCode, body, headers, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// resetPassword applies a password reset using an out-of-band code.
func (c *client) resetPassword(ctx context.Context, oobCode, newPassword string) error {
	const op = "client.resetPassword"
	body := map[string]interface{}{
		"oobCode":     oobCode,
		"newPassword": newPassword,
	}
	if _, err := c.post(ctx, op, c.endpoints.PasswordReset, body, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// deleteAccount deletes the id token's account, returning the upstream
// status so the caller can gate the session teardown on a 200.
func (c *client) deleteAccount(ctx context.Context, idToken string) (int, error) {
	const op = "client.deleteAccount"
	body := map[string]interface{}{
		"idToken": idToken,
	}
	status, err := c.post(ctx, op, c.endpoints.DeleteAccount, body, nil, nil)
	if err != nil {
		return status, fmt.Errorf("%s: %w", op, err)
	}
	return status, nil
}

// post sends one JSON request and narrows the response at the boundary. A
// non-2xx status returns the status along with a *ProviderError parsed from
// the body; transport failures return a zero status. The endpoint URL is
// never logged since it embeds the API key.
func (c *client) post(ctx context.Context, op string, endpoint string, body interface{}, headers map[string]string, out interface{}) (int, error) {
	reqID, err := id.New("req")
	if err != nil {
		return 0, fmt.Errorf("unable to generate request id: %w", err)
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("unable to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("provider request", "op", op, "request_id", reqID)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("unable to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("unable to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := parseProviderError(resp.StatusCode, respBody)
		c.logger.Debug("provider request failed", "op", op, "request_id", reqID, "status", resp.StatusCode, "message", perr.Message)
		return resp.StatusCode, perr
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("unable to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// parseExpiresIn converts the provider's expiresIn payload field, which
// travels as a string of seconds, into a duration.
func parseExpiresIn(s string) (time.Duration, error) {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiresIn %q: %w", s, ErrInvalidParameter)
	}
	return time.Duration(secs) * time.Second, nil
}
