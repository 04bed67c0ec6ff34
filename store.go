package fireauth

// SessionStore is the capability the auth orchestrator exposes to a
// strategy. The Provider is the sole writer of tokens and the user profile;
// it mutates orchestrator-visible session state only through this surface.
// Tokens are keyed by provider name so one orchestrator can host several
// strategies.
type SessionStore interface {
	// Token returns the stored id token for the named provider, or "".
	Token(name string) string

	// SetToken stores the id token for the named provider. An empty token
	// clears it.
	SetToken(name, token string)

	// RefreshToken returns the stored refresh token for the named provider,
	// or "".
	RefreshToken(name string) string

	// SetRefreshToken stores the refresh token for the named provider.
	SetRefreshToken(name, token string)

	// User returns the current profile, or nil when none has been fetched.
	User() *User

	// SetUser replaces the current profile.
	SetUser(u *User)

	// LoggedIn reports whether the orchestrator considers a session active.
	LoggedIn() bool

	// Reset clears tokens, the user profile, and the logged-in flag.
	Reset() error
}
