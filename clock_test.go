package fireauth

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClockTime is a mutable time source for clock tests.
type testClockTime struct {
	mu  sync.Mutex
	now time.Time
}

func (tt *testClockTime) Now() time.Time {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.now
}

func (tt *testClockTime) Advance(d time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.now = tt.now.Add(d)
}

func TestNewExpiryClock(t *testing.T) {
	t.Parallel()
	t.Run("empty-name", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		_, err := NewExpiryClock("", NewTestStorage(t))
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("nil-storage", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		_, err := NewExpiryClock("firebase", nil)
		assert.ErrorIs(err, ErrNilParameter)
	})
}

func TestExpiryClock_SetExpiry(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	src := &testClockTime{now: time.Unix(1700000000, 0)}
	storage := NewTestStorage(t)
	c, err := NewExpiryClock("firebase", storage, WithNow(src.Now))
	require.NoError(err)

	require.NoError(c.SetExpiry(3600 * time.Second))

	raw, ok := storage.Get("_expires.firebase")
	require.True(ok)
	assert.Equal(strconv.FormatInt(src.Now().Add(3600*time.Second).UnixMilli(), 10), raw)
	assert.Equal(3600*time.Second, c.Remaining())
}

func TestExpiryClock_Remaining(t *testing.T) {
	t.Parallel()
	t.Run("decreases-with-time", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		src := &testClockTime{now: time.Unix(1700000000, 0)}
		c, err := NewExpiryClock("firebase", NewTestStorage(t), WithNow(src.Now))
		require.NoError(err)
		require.NoError(c.SetExpiry(300 * time.Second))

		assert.Equal(300*time.Second, c.Remaining())
		src.Advance(120 * time.Second)
		assert.Equal(180*time.Second, c.Remaining())
	})
	t.Run("absent-reads-as-zero", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, err := NewExpiryClock("firebase", NewTestStorage(t))
		require.NoError(err)
		assert.Equal(time.Duration(0), c.Remaining())
	})
	t.Run("past-clamps-to-zero", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		src := &testClockTime{now: time.Unix(1700000000, 0)}
		c, err := NewExpiryClock("firebase", NewTestStorage(t), WithNow(src.Now))
		require.NoError(err)
		require.NoError(c.SetExpiry(60 * time.Second))

		src.Advance(2 * time.Minute)
		assert.Equal(time.Duration(0), c.Remaining())
	})
	t.Run("garbage-reads-as-zero", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		storage := NewTestStorage(t)
		require.NoError(storage.Set("_expires.firebase", "not-a-timestamp"))
		c, err := NewExpiryClock("firebase", storage)
		require.NoError(err)
		assert.Equal(time.Duration(0), c.Remaining())
	})
}

func TestExpiryClock_Unset(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	storage := NewTestStorage(t)
	c, err := NewExpiryClock("firebase", storage)
	require.NoError(err)
	require.NoError(c.SetExpiry(3600 * time.Second))

	require.NoError(c.Unset())
	_, ok := storage.Get("_expires.firebase")
	assert.False(ok)
	assert.Equal(time.Duration(0), c.Remaining())
}
