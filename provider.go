package fireauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"
)

// Credentials are the fields posted to the login operation, typically email
// and password. returnSecureToken is merged in by the provider.
type Credentials map[string]interface{}

// PasswordCredentials builds login credentials for the common
// email/password case.
func PasswordCredentials(email, password string) Credentials {
	return Credentials{
		"email":    email,
		"password": password,
	}
}

// Provider is the session lifecycle controller for one Firebase identity
// provider instance. It composes the identity client, the expiry clock, and
// the refresh scheduler, and it is the only component that mutates
// orchestrator-visible session state.
//
// There is no mutual exclusion across Login, Refresh, and scheduler ticks;
// the last write to tokens and expiry wins. Overlapping refreshes are the
// one exception: they coalesce into a single in-flight call.
type Provider struct {
	config *Config
	client *client
	clock  *ExpiryClock
	store  SessionStore
	logger hclog.Logger

	// refreshGroup coalesces a scheduler-triggered refresh racing a
	// user-triggered one into a single provider call, keyed by provider
	// name.
	refreshGroup singleflight.Group

	mu      sync.Mutex
	started bool

	// backgroundCtx is the context used by the provider for background
	// activities, i.e. the refresh scheduler.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities
	// running in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates a Provider strategy for the given config, bound to
// the orchestrator's session store and the persistent storage backend the
// expiry instant lives in.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config, store SessionStore, storage Storage) (*Provider, error) {
	const op = "fireauth.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	if storage == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}

	client, err := newClient(c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	clock, err := NewExpiryClock(c.Name, storage, WithNow(c.Now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		config:              c,
		client:              client,
		clock:               clock,
		store:               store,
		logger:              logger,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}, nil
}

// Done with the provider's background resources, stopping the refresh
// scheduler, and must be called for every Provider created.
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Mount is the orchestrator's startup hook. It starts the refresh scheduler
// (once; Mount is idempotent) and performs the initial profile fetch unless
// a user is already present. It returns once that fetch settles.
func (p *Provider) Mount(ctx context.Context) error {
	p.mu.Lock()
	if !p.started && p.backgroundCtxCancel != nil {
		p.started = true
		go p.refreshLoop(p.backgroundCtx)
	}
	p.mu.Unlock()

	if p.store.User() != nil {
		return nil
	}
	return p.FetchUser(ctx)
}

// Login authenticates the credentials against the provider. On success the
// expiry clock is armed, both tokens are stored, and the profile is
// fetched. When the config requires verified email addresses, a
// disabled-but-unverified account clears the session and fails with
// ErrUserNotVerified.
func (p *Provider) Login(ctx context.Context, credentials Credentials) error {
	const op = "Provider.Login"
	resp, err := p.client.login(ctx, credentials)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if p.config.RequireEmailVerified {
		user, err := p.client.lookup(ctx, string(resp.IDToken))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if user.Disabled {
			if err := p.Logout(); err != nil {
				p.logger.Warn("logout during login rejection failed", "provider", p.config.Name, "err", err)
			}
			return fmt.Errorf("%s: verify the account before signing in: %w", op, ErrUserNotVerified)
		}
	}

	if err := p.applySession(resp.IDToken, resp.RefreshToken, resp.ExpiresIn); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return p.FetchUser(ctx)
}

// Refresh exchanges the stored refresh token for a fresh token pair,
// re-arms the expiry clock, and re-fetches the profile. Concurrent calls
// coalesce into one in-flight exchange.
func (p *Provider) Refresh(ctx context.Context) error {
	const op = "Provider.Refresh"
	_, err, _ := p.refreshGroup.Do(p.config.Name, func() (interface{}, error) {
		return nil, p.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Provider) refresh(ctx context.Context) error {
	resp, err := p.client.refresh(ctx, p.store.RefreshToken(p.config.Name))
	if err != nil {
		return err
	}
	if err := p.applySession(resp.IDToken, resp.RefreshToken, resp.ExpiresIn); err != nil {
		return err
	}
	return p.FetchUser(ctx)
}

// applySession records a server-issued token pair. The expiry clock is
// armed before the tokens are stored so a concurrent scheduler tick reads
// the refreshed value, not the stale one.
func (p *Provider) applySession(idToken IDToken, refreshToken RefreshToken, expiresIn string) error {
	d, err := parseExpiresIn(expiresIn)
	if err != nil {
		return err
	}
	if err := p.clock.SetExpiry(d); err != nil {
		return err
	}
	p.store.SetToken(p.config.Name, string(idToken))
	p.store.SetRefreshToken(p.config.Name, string(refreshToken))
	return nil
}

// FetchUser projects the account record into the session's user profile.
// Without a stored id token it resolves without issuing a request. A
// disabled account clears the session and fails with ErrAccountDisabled.
func (p *Provider) FetchUser(ctx context.Context) error {
	const op = "Provider.FetchUser"
	token := p.store.Token(p.config.Name)
	if token == "" {
		return nil
	}
	user, err := p.client.lookup(ctx, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.Disabled {
		if err := p.Logout(); err != nil {
			p.logger.Warn("logout of disabled account failed", "provider", p.config.Name, "err", err)
		}
		return fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}
	p.store.SetUser(&User{
		UID:           user.LocalID,
		DisplayName:   user.DisplayName,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		PhotoURL:      user.PhotoURL,
	})
	return nil
}

// UpdateProfile posts account mutations (password, email, displayName,
// photoUrl) while logged in. On a 200 the refresh token is re-stored, the
// returned name/photo are merged into the existing user, the expiry clock
// is re-armed, and the profile is re-fetched.
//
// While logged out, and on a non-200 response, the update silently does not
// apply. Known gap: HTTP-level failures are not surfaced to the caller.
func (p *Provider) UpdateProfile(ctx context.Context, fields map[string]interface{}) error {
	const op = "Provider.UpdateProfile"
	if !p.store.LoggedIn() {
		return nil
	}
	body := map[string]interface{}{
		"idToken":           p.store.Token(p.config.Name),
		"returnSecureToken": true,
	}
	for k, v := range fields {
		body[k] = v
	}
	resp, status, err := p.client.update(ctx, body)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil
	}

	merged := &User{}
	if current := p.store.User(); current != nil {
		*merged = *current
	}
	merged.DisplayName = resp.DisplayName
	merged.PhotoURL = resp.PhotoURL

	d, err := parseExpiresIn(resp.ExpiresIn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.clock.SetExpiry(d); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.store.SetRefreshToken(p.config.Name, string(resp.RefreshToken))
	p.store.SetUser(merged)
	return p.FetchUser(ctx)
}

// ChangePassword is sugar over UpdateProfile for a password change.
func (p *Provider) ChangePassword(ctx context.Context, password string) error {
	return p.UpdateProfile(ctx, map[string]interface{}{
		"password": password,
	})
}

// ChangeEmail is sugar over UpdateProfile for an email change.
func (p *Provider) ChangeEmail(ctx context.Context, email string) error {
	return p.UpdateProfile(ctx, map[string]interface{}{
		"email": email,
	})
}

// SendPasswordReset requests a password-reset email for the address.
// Supported options: WithLocale
func (p *Provider) SendPasswordReset(ctx context.Context, email string, opt ...Option) error {
	const op = "Provider.SendPasswordReset"
	opts := getOOBOpts(opt...)
	err := p.client.sendOOBCode(ctx, map[string]interface{}{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, opts.withLocale)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConfirmPasswordReset applies a password reset using the out-of-band code
// from the reset email.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, oobCode, newPassword string) error {
	const op = "Provider.ConfirmPasswordReset"
	if err := p.client.resetPassword(ctx, oobCode, newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendEmailVerification requests a verification email for the current
// account. It fails with ErrNotAuthenticated while logged out.
// Supported options: WithLocale
func (p *Provider) SendEmailVerification(ctx context.Context, opt ...Option) error {
	const op = "Provider.SendEmailVerification"
	if !p.store.LoggedIn() {
		return fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	opts := getOOBOpts(opt...)
	err := p.client.sendOOBCode(ctx, map[string]interface{}{
		"requestType": "VERIFY_EMAIL",
		"idToken":     p.store.Token(p.config.Name),
	}, opts.withLocale)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConfirmEmailVerification confirms email verification using the
// out-of-band code from the verification email.
func (p *Provider) ConfirmEmailVerification(ctx context.Context, oobCode string) error {
	const op = "Provider.ConfirmEmailVerification"
	_, _, err := p.client.update(ctx, map[string]interface{}{
		"oobCode": oobCode,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteAccount deletes the current account and, on a 200, tears the
// session down. A non-200 response silently does nothing; see
// UpdateProfile for the matching known gap.
func (p *Provider) DeleteAccount(ctx context.Context) error {
	const op = "Provider.DeleteAccount"
	status, err := p.client.deleteAccount(ctx, p.store.Token(p.config.Name))
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusOK {
		return p.Logout()
	}
	return nil
}

// Logout clears the persisted expiry and resets the orchestrator's session
// state. Best effort: both steps run even when one fails, and their errors
// are combined.
func (p *Provider) Logout() error {
	const op = "Provider.Logout"
	var result *multierror.Error
	if err := p.clock.Unset(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.store.Reset(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// oobOptions is the set of available options for out-of-band-code requests
type oobOptions struct {
	withLocale string
}

func oobDefaults() oobOptions {
	return oobOptions{
		withLocale: DefaultLocale,
	}
}

func getOOBOpts(opt ...Option) oobOptions {
	opts := oobDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLocale sets the locale for the out-of-band-code email.
func WithLocale(locale string) Option {
	return func(o interface{}) {
		if o, ok := o.(*oobOptions); ok {
			o.withLocale = locale
		}
	}
}
