package fireauth

import (
	"fmt"
	"strconv"
	"time"
)

// ExpiryKeyPrefix prefixes the storage key the absolute expiry instant is
// persisted under; the full key is ExpiryKeyPrefix + the provider name.
const ExpiryKeyPrefix = "_expires."

// ExpiryClock tracks how much validity remains on the current id token. It
// owns exactly one storage key and persists the expiry as an absolute
// epoch-milliseconds instant so it survives process reloads.
type ExpiryClock struct {
	name    string
	storage Storage
	now     func() time.Time
}

// NewExpiryClock creates an ExpiryClock for the named provider backed by s.
// Supported options: WithNow
func NewExpiryClock(name string, s Storage, opt ...Option) (*ExpiryClock, error) {
	const op = "fireauth.NewExpiryClock"
	if name == "" {
		return nil, fmt.Errorf("%s: provider name is empty: %w", op, ErrInvalidParameter)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	opts := getClockOpts(opt...)
	return &ExpiryClock{
		name:    name,
		storage: s,
		now:     opts.withNowFunc,
	}, nil
}

func (c *ExpiryClock) key() string {
	return ExpiryKeyPrefix + c.name
}

// SetExpiry persists now + expiresIn as the new absolute expiry instant.
func (c *ExpiryClock) SetExpiry(expiresIn time.Duration) error {
	const op = "ExpiryClock.SetExpiry"
	at := c.now().Add(expiresIn)
	if err := c.storage.Set(c.key(), strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("%s: unable to persist expiry: %w", op, err)
	}
	return nil
}

// Remaining returns how long the current token is still valid. An absent,
// unparsable, or past instant reads as zero, never negative, so callers
// never schedule a negative-delay refresh and never treat a stale timestamp
// as time available.
func (c *ExpiryClock) Remaining() time.Duration {
	raw, ok := c.storage.Get(c.key())
	if !ok {
		return 0
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	remaining := time.UnixMilli(ms).Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Unset removes the persisted expiry instant.
func (c *ExpiryClock) Unset() error {
	const op = "ExpiryClock.Unset"
	if err := c.storage.Delete(c.key()); err != nil {
		return fmt.Errorf("%s: unable to clear expiry: %w", op, err)
	}
	return nil
}

// clockOptions is the set of available options for ExpiryClock functions
type clockOptions struct {
	withNowFunc func() time.Time
}

// clockDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func clockDefaults() clockOptions {
	return clockOptions{
		withNowFunc: time.Now,
	}
}

// getClockOpts gets the clock defaults and applies the opt overrides passed
// in.
func getClockOpts(opt ...Option) clockOptions {
	opts := clockDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
