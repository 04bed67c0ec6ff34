package fireauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProvider wires a Provider to the test identity provider with
// in-memory store and storage.
func testProvider(t *testing.T, tp *TestIdentityProvider, opt ...Option) (*Provider, *TestSessionStore, *TestStorage) {
	t.Helper()
	store := NewTestSessionStore(t)
	storage := NewTestStorage(t)
	p, err := NewProvider(tp.TestConfig("firebase", opt...), store, storage)
	require.NoError(t, err)
	t.Cleanup(p.Done)
	return p, store, storage
}

func TestNewProvider(t *testing.T) {
	t.Parallel()
	tp := StartTestIdentityProvider(t)
	tests := []struct {
		name    string
		config  *Config
		store   SessionStore
		storage Storage
	}{
		{name: "nil-config", config: nil, store: NewTestSessionStore(t), storage: NewTestStorage(t)},
		{name: "nil-store", config: tp.TestConfig("firebase"), store: nil, storage: NewTestStorage(t)},
		{name: "nil-storage", config: tp.TestConfig("firebase"), store: NewTestSessionStore(t), storage: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			_, err := NewProvider(tt.config, tt.store, tt.storage)
			assert.ErrorIs(err, ErrNilParameter)
		})
	}
}

func TestProvider_Login(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	testNow := func() time.Time { return time.Unix(1700000000, 0) }

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, storage := testProvider(t, tp, WithNow(testNow))

		require.NoError(p.Login(ctx, PasswordCredentials("alice@example.com", "secret")))

		assert.Equal("T1", store.Token("firebase"))
		assert.Equal("R1", store.RefreshToken("firebase"))
		assert.True(store.LoggedIn())

		clock, err := NewExpiryClock("firebase", storage, WithNow(testNow))
		require.NoError(err)
		assert.Equal(3600*time.Second, clock.Remaining())

		// the profile fetch must use the freshly issued token
		assert.Equal(1, tp.LookupCount())
		assert.Equal("T1", tp.LastLookupToken())

		user := store.User()
		require.NotNil(user)
		assert.Equal("u-1234567890", user.UID)
		assert.Equal("Alice Example", user.DisplayName)
		assert.Equal("alice@example.com", user.Email)
		assert.True(user.EmailVerified)
		assert.Equal("https://example.com/alice.png", user.PhotoURL)

		body := tp.LastLoginBody()
		assert.Equal(true, body["returnSecureToken"])
		assert.Equal("alice@example.com", body["email"])
		assert.Equal("secret", body["password"])
	})

	t.Run("unverified-account-rejected", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		tp.SetDisabled(true)
		p, store, storage := testProvider(t, tp, WithRequireEmailVerified())

		err := p.Login(ctx, PasswordCredentials("alice@example.com", "secret"))
		require.Error(err)
		assert.ErrorIs(err, ErrUserNotVerified)

		// session ends logged out with nothing persisted
		assert.False(store.LoggedIn())
		assert.Empty(store.Token("firebase"))
		assert.Empty(store.RefreshToken("firebase"))
		assert.Nil(store.User())
		_, ok := storage.Get("_expires.firebase")
		assert.False(ok)
	})

	t.Run("verified-account-accepted", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, _ := testProvider(t, tp, WithRequireEmailVerified())

		require.NoError(p.Login(ctx, PasswordCredentials("alice@example.com", "secret")))
		assert.True(store.LoggedIn())
		// one lookup for the verification check, one for the profile fetch
		assert.Equal(2, tp.LookupCount())
	})

	t.Run("provider-rejection-propagates", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		tp := StartTestIdentityProvider(t)
		tp.Stop()
		p, store, _ := testProvider(t, tp)

		err := p.Login(ctx, PasswordCredentials("alice@example.com", "wrong"))
		assert.Error(err)
		assert.False(store.LoggedIn())
	})
}

func TestProvider_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	testNow := func() time.Time { return time.Unix(1700000000, 0) }

	t.Run("rotates-tokens-and-refetches", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, storage := testProvider(t, tp, WithNow(testNow))
		store.SetToken("firebase", "T1")
		store.SetRefreshToken("firebase", "R1")

		require.NoError(p.Refresh(ctx))

		assert.Equal("T2", store.Token("firebase"))
		assert.Equal("R2", store.RefreshToken("firebase"))

		body := tp.LastRefreshBody()
		assert.Equal("refresh_token", body["grant_type"])
		assert.Equal("R1", body["refresh_token"])

		clock, err := NewExpiryClock("firebase", storage, WithNow(testNow))
		require.NoError(err)
		assert.Equal(3600*time.Second, clock.Remaining())

		assert.Equal(1, tp.LookupCount())
		assert.Equal("T2", tp.LastLookupToken())
	})

	t.Run("concurrent-refreshes-coalesce", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		tp.SetRefreshDelay(150 * time.Millisecond)
		p, store, _ := testProvider(t, tp)
		store.SetToken("firebase", "T1")
		store.SetRefreshToken("firebase", "R1")

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				errs <- p.Refresh(ctx)
			}()
		}
		require.NoError(<-errs)
		require.NoError(<-errs)

		assert.Equal(1, tp.RefreshCount())
		assert.Equal("T2", store.Token("firebase"))
	})
}

func TestProvider_FetchUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no-token-issues-no-request", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, _ := testProvider(t, tp)

		require.NoError(p.FetchUser(ctx))
		assert.Equal(0, tp.LookupCount())
		assert.Nil(store.User())
	})

	t.Run("disabled-account-clears-session", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		tp.SetDisabled(true)
		p, store, storage := testProvider(t, tp)
		store.SetToken("firebase", "T1")
		require.NoError(storage.Set("_expires.firebase", "1"))

		err := p.FetchUser(ctx)
		require.Error(err)
		assert.ErrorIs(err, ErrAccountDisabled)
		assert.False(store.LoggedIn())
		assert.Nil(store.User())
		_, ok := storage.Get("_expires.firebase")
		assert.False(ok)
	})
}

func TestProvider_UpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	testNow := func() time.Time { return time.Unix(1700000000, 0) }

	t.Run("logged-out-is-a-no-op", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		require.NoError(p.UpdateProfile(ctx, map[string]interface{}{"displayName": "Mallory"}))
		assert.Equal(0, tp.UpdateCount())
	})

	t.Run("success-restores-tokens-and-refetches", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, storage := testProvider(t, tp, WithNow(testNow))
		store.SetToken("firebase", "T1")

		require.NoError(p.UpdateProfile(ctx, map[string]interface{}{"displayName": "Alice Example"}))

		body := tp.LastUpdateBody()
		assert.Equal("T1", body["idToken"])
		assert.Equal(true, body["returnSecureToken"])
		assert.Equal("Alice Example", body["displayName"])

		assert.Equal("R1", store.RefreshToken("firebase"))
		clock, err := NewExpiryClock("firebase", storage, WithNow(testNow))
		require.NoError(err)
		assert.Equal(3600*time.Second, clock.Remaining())

		assert.Equal(1, tp.LookupCount())
		require.NotNil(store.User())
		assert.Equal("Alice Example", store.User().DisplayName)
	})

	t.Run("non-200-silently-does-not-apply", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		tp.SetUpdateStatus(http.StatusBadRequest)
		p, store, _ := testProvider(t, tp)
		store.SetToken("firebase", "T1")

		require.NoError(p.UpdateProfile(ctx, map[string]interface{}{"displayName": "Mallory"}))
		assert.Equal(1, tp.UpdateCount())
		assert.Equal(0, tp.LookupCount())
		assert.Nil(store.User())
		assert.Empty(store.RefreshToken("firebase"))
	})

	t.Run("change-password-and-email-sugar", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, _ := testProvider(t, tp)
		store.SetToken("firebase", "T1")

		require.NoError(p.ChangePassword(ctx, "hunter2"))
		assert.Equal("hunter2", tp.LastUpdateBody()["password"])

		require.NoError(p.ChangeEmail(ctx, "alice@example.org"))
		assert.Equal("alice@example.org", tp.LastUpdateBody()["email"])
	})
}

func TestProvider_PasswordReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("send-with-default-locale", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		require.NoError(p.SendPasswordReset(ctx, "alice@example.com"))
		body := tp.LastOOBBody()
		assert.Equal("PASSWORD_RESET", body["requestType"])
		assert.Equal("alice@example.com", body["email"])
		assert.Equal("en", tp.LastOOBLocale())
	})

	t.Run("send-with-locale", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		require.NoError(p.SendPasswordReset(ctx, "alice@example.com", WithLocale("de")))
		assert.Equal("de", tp.LastOOBLocale())
	})

	t.Run("confirm", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		require.NoError(p.ConfirmPasswordReset(ctx, "oob-123", "new-secret"))
		assert.Equal(1, tp.PasswordResetCount())
		body := tp.LastResetBody()
		assert.Equal("oob-123", body["oobCode"])
		assert.Equal("new-secret", body["newPassword"])
	})
}

func TestProvider_EmailVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("send-requires-a-session", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		err := p.SendEmailVerification(ctx)
		assert.ErrorIs(err, ErrNotAuthenticated)
		assert.Equal(0, tp.OOBCount())
	})

	t.Run("send-while-logged-in", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, _ := testProvider(t, tp)
		store.SetToken("firebase", "T1")

		require.NoError(p.SendEmailVerification(ctx))
		body := tp.LastOOBBody()
		assert.Equal("VERIFY_EMAIL", body["requestType"])
		assert.Equal("T1", body["idToken"])
		assert.Equal("en", tp.LastOOBLocale())
	})

	t.Run("confirm", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		require.NoError(p.ConfirmEmailVerification(ctx, "oob-456"))
		assert.Equal("oob-456", tp.LastUpdateBody()["oobCode"])
	})
}

func TestProvider_DeleteAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("200-logs-out", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, storage := testProvider(t, tp)
		store.SetToken("firebase", "T1")
		require.NoError(storage.Set("_expires.firebase", "1"))

		require.NoError(p.DeleteAccount(ctx))
		assert.Equal(1, tp.DeleteCount())
		assert.Equal("T1", tp.LastDeleteBody()["idToken"])
		assert.False(store.LoggedIn())
		assert.Empty(store.Token("firebase"))
		_, ok := storage.Get("_expires.firebase")
		assert.False(ok)
	})

	t.Run("non-200-silently-does-nothing", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		tp.SetDeleteStatus(http.StatusBadRequest)
		p, store, _ := testProvider(t, tp)
		store.SetToken("firebase", "T1")

		require.NoError(p.DeleteAccount(ctx))
		assert.Equal(1, tp.DeleteCount())
		assert.True(store.LoggedIn())
		assert.Equal("T1", store.Token("firebase"))
		assert.Equal(0, store.ResetCount())
	})
}

func TestProvider_Logout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestIdentityProvider(t)
	p, store, storage := testProvider(t, tp)
	store.SetToken("firebase", "T1")
	store.SetRefreshToken("firebase", "R1")
	store.SetUser(&User{UID: "u-1234567890"})
	require.NoError(storage.Set("_expires.firebase", "1"))

	require.NoError(p.Logout())
	assert.False(store.LoggedIn())
	assert.Empty(store.Token("firebase"))
	assert.Empty(store.RefreshToken("firebase"))
	assert.Nil(store.User())
	_, ok := storage.Get("_expires.firebase")
	assert.False(ok)
}

func TestProvider_Mount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fetches-user-once", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, store, _ := testProvider(t, tp)
		store.SetToken("firebase", "T1")

		require.NoError(p.Mount(ctx))
		assert.Equal(1, tp.LookupCount())
		require.NotNil(store.User())

		// a second mount finds the user already present
		require.NoError(p.Mount(ctx))
		assert.Equal(1, tp.LookupCount())
	})

	t.Run("no-session-settles-without-requests", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestIdentityProvider(t)
		p, _, _ := testProvider(t, tp)

		require.NoError(p.Mount(ctx))
		assert.Equal(0, tp.LookupCount())
	})
}
