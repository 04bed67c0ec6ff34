package fireauth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestAccount is the account record the TestIdentityProvider serves from
// its lookup endpoint.
type TestAccount struct {
	UID           string
	DisplayName   string
	Email         string
	EmailVerified bool
	PhotoURL      string
	Disabled      bool
}

// TestIdentityProvider is a local server faking the relying-party REST API,
// which makes writing tests for the strategy much easier. It serves the
// login, refresh, lookup, update, oob-code, password-reset, and
// account-deletion endpoints with configurable responses, and it counts and
// captures requests per operation.
type TestIdentityProvider struct {
	httpServer *httptest.Server
	t          *testing.T

	mu sync.Mutex

	// login response
	idToken      string
	refreshToken string
	expiresIn    string

	// refresh response
	refreshedIDToken      string
	refreshedRefreshToken string
	refreshedExpiresIn    string

	account      TestAccount
	updateStatus int
	deleteStatus int
	refreshDelay time.Duration

	loginCount   int
	refreshCount int
	lookupCount  int
	updateCount  int
	oobCount     int
	resetCount   int
	deleteCount  int

	lastLoginBody   map[string]interface{}
	lastLookupToken string
	lastUpdateBody  map[string]interface{}
	lastOOBBody     map[string]interface{}
	lastOOBLocale   string
	lastResetBody   map[string]interface{}
	lastDeleteBody  map[string]interface{}
	lastRefreshBody map[string]interface{}
}

// StartTestIdentityProvider creates a disposable TestIdentityProvider with
// a default account and token pair (T1/R1 rotating to T2/R2 on refresh).
func StartTestIdentityProvider(t *testing.T) *TestIdentityProvider {
	t.Helper()
	p := &TestIdentityProvider{
		t:                     t,
		idToken:               "T1",
		refreshToken:          "R1",
		expiresIn:             "3600",
		refreshedIDToken:      "T2",
		refreshedRefreshToken: "R2",
		refreshedExpiresIn:    "3600",
		account: TestAccount{
			UID:           "u-1234567890",
			DisplayName:   "Alice Example",
			Email:         "alice@example.com",
			EmailVerified: true,
			PhotoURL:      "https://example.com/alice.png",
		},
		updateStatus: http.StatusOK,
		deleteStatus: http.StatusOK,
	}
	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Stop stops the running TestIdentityProvider.
func (p *TestIdentityProvider) Stop() {
	p.httpServer.Close()
}

// URL returns the server's base URL, suitable for both WithBaseURL and
// WithTokenURL.
func (p *TestIdentityProvider) URL() string {
	return p.httpServer.URL
}

// TestConfig builds a strategy config pointed at this test provider.
func (p *TestIdentityProvider) TestConfig(name string, opt ...Option) *Config {
	p.t.Helper()
	opt = append([]Option{
		WithBaseURL(p.URL()),
		WithTokenURL(p.URL() + "/token"),
	}, opt...)
	c, err := NewConfig(name, "test-api-key", opt...)
	if err != nil {
		p.t.Fatalf("unable to build test config: %s", err)
	}
	return c
}

// SetTokens configures the login response token pair.
func (p *TestIdentityProvider) SetTokens(idToken, refreshToken, expiresIn string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idToken, p.refreshToken, p.expiresIn = idToken, refreshToken, expiresIn
}

// SetRefreshedTokens configures the refresh response token pair.
func (p *TestIdentityProvider) SetRefreshedTokens(idToken, refreshToken, expiresIn string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshedIDToken, p.refreshedRefreshToken, p.refreshedExpiresIn = idToken, refreshToken, expiresIn
}

// SetAccount configures the account record served by the lookup endpoint.
func (p *TestIdentityProvider) SetAccount(a TestAccount) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = a
}

// SetDisabled marks the served account as disabled (or not).
func (p *TestIdentityProvider) SetDisabled(disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account.Disabled = disabled
}

// SetUpdateStatus configures the status returned by the update endpoint.
func (p *TestIdentityProvider) SetUpdateStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateStatus = status
}

// SetDeleteStatus configures the status returned by the deletion endpoint.
func (p *TestIdentityProvider) SetDeleteStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteStatus = status
}

// SetRefreshDelay makes the refresh endpoint sleep before responding, for
// exercising overlapping refresh calls.
func (p *TestIdentityProvider) SetRefreshDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshDelay = d
}

// LoginCount returns the number of login requests served.
func (p *TestIdentityProvider) LoginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCount
}

// RefreshCount returns the number of refresh requests served.
func (p *TestIdentityProvider) RefreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCount
}

// LookupCount returns the number of account lookup requests served.
func (p *TestIdentityProvider) LookupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookupCount
}

// UpdateCount returns the number of account update requests served.
func (p *TestIdentityProvider) UpdateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updateCount
}

// OOBCount returns the number of oob-code requests served.
func (p *TestIdentityProvider) OOBCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oobCount
}

// DeleteCount returns the number of account deletion requests served.
func (p *TestIdentityProvider) DeleteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleteCount
}

// LastLookupToken returns the id token most recently posted to the lookup
// endpoint.
func (p *TestIdentityProvider) LastLookupToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLookupToken
}

// LastLoginBody returns the body most recently posted to the login
// endpoint.
func (p *TestIdentityProvider) LastLoginBody() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLoginBody
}

// LastRefreshBody returns the body most recently posted to the refresh
// endpoint.
func (p *TestIdentityProvider) LastRefreshBody() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefreshBody
}

// LastUpdateBody returns the body most recently posted to the update
// endpoint.
func (p *TestIdentityProvider) LastUpdateBody() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUpdateBody
}

// LastOOBBody returns the body most recently posted to the oob-code
// endpoint.
func (p *TestIdentityProvider) LastOOBBody() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOOBBody
}

// LastOOBLocale returns the locale header most recently received by the
// oob-code endpoint.
func (p *TestIdentityProvider) LastOOBLocale() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOOBLocale
}

// LastResetBody returns the body most recently posted to the
// password-reset endpoint.
func (p *TestIdentityProvider) LastResetBody() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResetBody
}

// PasswordResetCount returns the number of password-reset confirmations
// served.
func (p *TestIdentityProvider) PasswordResetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetCount
}

// LastDeleteBody returns the body most recently posted to the deletion
// endpoint.
func (p *TestIdentityProvider) LastDeleteBody() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDeleteBody
}

// ServeHTTP implements the relying-party endpoints.
func (p *TestIdentityProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body := map[string]interface{}{}
	if raw, err := io.ReadAll(req.Body); err == nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/verifyPassword":
		p.loginCount++
		p.lastLoginBody = body
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"idToken":      p.idToken,
			"refreshToken": p.refreshToken,
			"expiresIn":    p.expiresIn,
		})
	case "/token":
		p.refreshCount++
		p.lastRefreshBody = body
		if p.refreshDelay > 0 {
			delay := p.refreshDelay
			p.mu.Unlock()
			time.Sleep(delay)
			p.mu.Lock()
		}
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"id_token":      p.refreshedIDToken,
			"refresh_token": p.refreshedRefreshToken,
			"expires_in":    p.refreshedExpiresIn,
		})
	case "/getAccountInfo":
		p.lookupCount++
		p.lastLookupToken, _ = body["idToken"].(string)
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"users": []map[string]interface{}{
				{
					"localId":       p.account.UID,
					"displayName":   p.account.DisplayName,
					"email":         p.account.Email,
					"emailVerified": p.account.EmailVerified,
					"photoUrl":      p.account.PhotoURL,
					"disabled":      p.account.Disabled,
				},
			},
		})
	case "/setAccountInfo":
		p.updateCount++
		p.lastUpdateBody = body
		if p.updateStatus != http.StatusOK {
			writeTestError(w, p.updateStatus, "UPDATE_REJECTED")
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"displayName":  p.account.DisplayName,
			"photoUrl":     p.account.PhotoURL,
			"expiresIn":    p.expiresIn,
			"refreshToken": p.refreshToken,
		})
	case "/getOobConfirmationCode":
		p.oobCount++
		p.lastOOBBody = body
		p.lastOOBLocale = req.Header.Get(localeHeader)
		writeTestJSON(w, http.StatusOK, map[string]interface{}{})
	case "/resetPassword":
		p.resetCount++
		p.lastResetBody = body
		writeTestJSON(w, http.StatusOK, map[string]interface{}{})
	case "/deleteAccount":
		p.deleteCount++
		p.lastDeleteBody = body
		if p.deleteStatus != http.StatusOK {
			writeTestError(w, p.deleteStatus, "DELETE_REJECTED")
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]interface{}{})
	default:
		writeTestError(w, http.StatusNotFound, fmt.Sprintf("unknown path %s", req.URL.Path))
	}
}

func writeTestJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeTestError(w http.ResponseWriter, status int, message string) {
	writeTestJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}
