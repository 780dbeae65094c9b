package otp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry() (*Registry, *fakeClock, *MemoryStore) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStoreWithClock(clock.Now)
	return NewRegistry(store, 5*time.Minute), clock, store
}

func TestGenerateIsSixDigits(t *testing.T) {
	r, _, _ := newTestRegistry()
	for i := 0; i < 50; i++ {
		code, err := r.Generate()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, code)
	}
}

func TestVerifyRespectsExpiry(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRegistry()

	require.NoError(t, r.Store(ctx, "9999999999", "123456"))

	assert.False(t, r.Verify(ctx, "9999999999", "654321"))
	clock.Advance(4*time.Minute + 59*time.Second)
	assert.True(t, r.Verify(ctx, "9999999999", "123456"))

	clock.Advance(time.Second)
	assert.False(t, r.Verify(ctx, "9999999999", "123456"))
	assert.False(t, r.Verify(ctx, "9999999999", "654321"))
}

func TestStoreOverwritesPreviousCode(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()

	require.NoError(t, r.Store(ctx, "9999999999", "111111"))
	require.NoError(t, r.Store(ctx, "9999999999", "222222"))

	assert.False(t, r.Verify(ctx, "9999999999", "111111"))
	assert.True(t, r.Verify(ctx, "9999999999", "222222"))
}

func TestClearPreventsReuse(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()

	code, err := r.Issue(ctx, "8888888888")
	require.NoError(t, err)
	require.True(t, r.Verify(ctx, "8888888888", code))

	require.NoError(t, r.Clear(ctx, "8888888888"))
	assert.False(t, r.Verify(ctx, "8888888888", code))
}

func TestVerifyRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()
	require.NoError(t, r.Store(ctx, "9999999999", "123456"))

	assert.False(t, r.Verify(ctx, "", "123456"))
	assert.False(t, r.Verify(ctx, "9999999999", ""))
	assert.False(t, r.Verify(ctx, "9999999999", "1234567"))
}

func TestPhonesDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := fmt.Sprintf("90000%05d", i)
			code := fmt.Sprintf("%06d", i)
			_ = r.Store(ctx, phone, code)
			assert.True(t, r.Verify(ctx, phone, code))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, store.Len())
}

func TestPurgeRemovesExpired(t *testing.T) {
	ctx := context.Background()
	r, clock, store := newTestRegistry()

	require.NoError(t, r.Store(ctx, "9000000001", "123456"))
	clock.Advance(3 * time.Minute)
	require.NoError(t, r.Store(ctx, "9000000002", "123456"))
	clock.Advance(3 * time.Minute)

	assert.Equal(t, 1, store.Purge())
	assert.Equal(t, 1, store.Len())
}

func TestNormalizePhone(t *testing.T) {
	p, err := NormalizePhone(" 9876543210 ")
	require.NoError(t, err)
	assert.Equal(t, "9876543210", p)

	for _, bad := range []string{"", "12345", "98765432101", "98765abcde", "+919876543210"} {
		_, err := NormalizePhone(bad)
		assert.ErrorIs(t, err, ErrInvalidPhone, bad)
	}
}

func TestNewRegistryDefaultsTTL(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), 0)
	assert.Equal(t, DefaultTTL, r.TTL())
}
