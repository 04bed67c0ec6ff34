package fireauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"

	sdkHTTP "github.com/go-fireauth/fireauth/sdk/http"
)

const (
	// DefaultBaseURL is the identitytoolkit relying-party API surface.
	DefaultBaseURL = "https://www.googleapis.com/identitytoolkit/v3/relyingparty"

	// DefaultTokenURL is the secure-token endpoint refresh tokens are
	// exchanged against.
	DefaultTokenURL = "https://securetoken.googleapis.com/v1/token"

	// DefaultRefreshInterval is the period the refresh scheduler ticks on.
	DefaultRefreshInterval = 60 * time.Second

	// DefaultRefreshThreshold is how close to expiry a tick must find the
	// session before it triggers a refresh.
	DefaultRefreshThreshold = 100 * time.Second

	// DefaultLocale is the locale sent with out-of-band-code requests when
	// the caller doesn't supply one.
	DefaultLocale = "en"
)

// Endpoints is the fixed mapping of operation name to fully qualified URL,
// derived once from the provider config and never recomputed.
type Endpoints struct {
	Login         string // verifyPassword
	Refresh       string // secure-token exchange
	Lookup        string // getAccountInfo
	Update        string // setAccountInfo
	OOBCode       string // getOobConfirmationCode
	PasswordReset string // resetPassword
	DeleteAccount string // deleteAccount
}

// Config represents the configuration for a Firebase identity provider
// strategy.  It is immutable after construction.
type Config struct {
	// Name identifies this provider instance; it keys the orchestrator's
	// token slots and the persisted expiry cookie.
	Name string

	// APIKey is the provider web API key. The key is concatenated into the
	// endpoint URLs as-is; a malformed key yields URLs that fail at request
	// time rather than at construction.
	APIKey APIKey

	// BaseURL is the relying-party API surface; DefaultBaseURL if empty.
	BaseURL string

	// TokenURL is the refresh endpoint; DefaultTokenURL if empty.
	TokenURL string

	// RequireEmailVerified rejects logins from accounts that have not
	// completed email verification.
	RequireEmailVerified bool

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// Logger is an optional logger
	Logger hclog.Logger

	// NowFunc is an optional time source, used by the expiry clock
	NowFunc func() time.Time

	// RefreshInterval is the scheduler period; DefaultRefreshInterval if
	// zero.
	RefreshInterval time.Duration

	// RefreshThreshold is the remaining-validity level below which a tick
	// refreshes; DefaultRefreshThreshold if zero.
	RefreshThreshold time.Duration

	endpoints Endpoints
}

// NewConfig composes a new config for a provider strategy.
// Supported options:
//	WithBaseURL
//	WithTokenURL
//	WithRequireEmailVerified
//	WithProviderCA
//	WithLogger
//	WithNow
//	WithRefreshInterval
//	WithRefreshThreshold
func NewConfig(name string, apiKey string, opt ...Option) (*Config, error) {
	const op = "fireauth.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Name:                 name,
		APIKey:               APIKey(apiKey),
		BaseURL:              opts.withBaseURL,
		TokenURL:             opts.withTokenURL,
		RequireEmailVerified: opts.withRequireEmailVerified,
		ProviderCA:           opts.withProviderCA,
		Logger:               opts.withLogger,
		NowFunc:              opts.withNowFunc,
		RefreshInterval:      opts.withRefreshInterval,
		RefreshThreshold:     opts.withRefreshThreshold,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	c.endpoints = c.buildEndpoints()
	return c, nil
}

// Validate the provider configuration. It verifies the name and API key are
// not empty and the URLs parse, but it doesn't verify the API key is
// accepted by the provider.
func (c *Config) Validate() error {
	const op = "fireauth.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if c.Name == "" {
		return fmt.Errorf("%s: provider name is empty: %w", op, ErrInvalidParameter)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%s: api key is empty: %w", op, ErrInvalidParameter)
	}
	for _, u := range []string{c.BaseURL, c.TokenURL} {
		if u == "" {
			continue
		}
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("%s: url %s is invalid: %w", op, u, err)
		}
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("%s: refresh interval is negative: %w", op, ErrInvalidParameter)
	}
	if c.RefreshThreshold < 0 {
		return fmt.Errorf("%s: refresh threshold is negative: %w", op, ErrInvalidParameter)
	}
	return nil
}

// Endpoints returns the operation endpoint map derived from the config.
// Configs built with NewConfig derive it once; a literal Config derives it
// on first use.
func (c *Config) Endpoints() Endpoints {
	if c.endpoints == (Endpoints{}) {
		return c.buildEndpoints()
	}
	return c.endpoints
}

// buildEndpoints qualifies every operation path with the API key. The key
// is appended verbatim, matching the provider's ?key= convention.
func (c *Config) buildEndpoints() Endpoints {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	key := "?key=" + string(c.APIKey)
	return Endpoints{
		Login:         base + "/verifyPassword" + key,
		Refresh:       tokenURL + key,
		Lookup:        base + "/getAccountInfo" + key,
		Update:        base + "/setAccountInfo" + key,
		OOBCode:       base + "/getOobConfirmationCode" + key,
		PasswordReset: base + "/resetPassword" + key,
		DeleteAccount: base + "/deleteAccount" + key,
	}
}

// Now returns the config's time source, or the real time when none was set.
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHTTP.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkHTTP.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// refreshInterval returns the configured scheduler period, defaulted.
func (c *Config) refreshInterval() time.Duration {
	if c.RefreshInterval > 0 {
		return c.RefreshInterval
	}
	return DefaultRefreshInterval
}

// refreshThreshold returns the configured refresh threshold, defaulted.
func (c *Config) refreshThreshold() time.Duration {
	if c.RefreshThreshold > 0 {
		return c.RefreshThreshold
	}
	return DefaultRefreshThreshold
}

// configOptions is the set of available options
type configOptions struct {
	withBaseURL              string
	withTokenURL             string
	withRequireEmailVerified bool
	withProviderCA           string
	withLogger               hclog.Logger
	withNowFunc              func() time.Time
	withRefreshInterval      time.Duration
	withRefreshThreshold     time.Duration
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithBaseURL overrides the relying-party API surface for the provider's
// config.
func WithBaseURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withBaseURL = u
		}
	}
}

// WithTokenURL overrides the refresh endpoint for the provider's config.
func WithTokenURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenURL = u
		}
	}
}

// WithRequireEmailVerified requires accounts to have completed email
// verification before a login succeeds.
func WithRequireEmailVerified() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequireEmailVerified = true
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for the provider's config
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}

// WithNow provides an optional time source for: Config, ExpiryClock
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withNowFunc = now
		case *clockOptions:
			v.withNowFunc = now
		}
	}
}

// WithRefreshInterval overrides the refresh scheduler's tick period.
func WithRefreshInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRefreshInterval = d
		}
	}
}

// WithRefreshThreshold overrides the remaining-validity level below which
// the scheduler refreshes.
func WithRefreshThreshold(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRefreshThreshold = d
		}
	}
}
