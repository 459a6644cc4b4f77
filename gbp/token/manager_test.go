package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRefresher struct {
	refreshCalls        atomic.Int64
	defaultRefreshCalls atomic.Int64
	delay               time.Duration
	err                 error
	expiresIn           time.Duration
}

func (f *fakeRefresher) Refresh(_ context.Context, connectionID string) (Token, error) {
	n := f.refreshCalls.Add(1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.err != nil {
		return Token{}, f.err
	}

	expiresIn := f.expiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return Token{
		AccessToken: fmt.Sprintf("token-%s-%d", connectionID, n),
		ExpiresAt:   time.Now().Add(expiresIn),
	}, nil
}

func (f *fakeRefresher) RefreshDefault(_ context.Context) (Token, error) {
	n := f.defaultRefreshCalls.Add(1)

	if f.err != nil {
		return Token{}, f.err
	}

	return Token{
		AccessToken: fmt.Sprintf("default-token-%d", n),
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func TestToken_ColdStartSingleCall(t *testing.T) {
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop())

	got, err := mgr.Token(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "token-c1-1", got)
	assert.Equal(t, int64(1), refresher.refreshCalls.Load())
}

func TestToken_ConcurrentColdStart(t *testing.T) {
	refresher := &fakeRefresher{delay: 50 * time.Millisecond}
	mgr := NewManager(refresher, zap.NewNop())

	const callers = 5

	var wg sync.WaitGroup

	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			results[i], errs[i] = mgr.Token(context.Background(), "c2")
		}(i)
	}

	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i], "all callers must observe the same token")
	}

	assert.Equal(t, int64(1), refresher.refreshCalls.Load(), "exactly one refresh must run")
}

func TestToken_CachedTokenReturnedWithoutRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop())

	first, err := mgr.Token(context.Background(), "c1")
	require.NoError(t, err)

	second, err := mgr.Token(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), refresher.refreshCalls.Load())
}

func TestToken_RefreshBufferRespected(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop(), WithClock(func() time.Time { return now }))

	// Token with 2 minutes of remaining lifetime sits inside the
	// 5-minute buffer and must not be used.
	mgr.CacheToken("c1", "stale-token", "", 2*time.Minute)

	got, err := mgr.Token(context.Background(), "c1")
	require.NoError(t, err)

	assert.NotEqual(t, "stale-token", got)
	assert.Equal(t, int64(1), refresher.refreshCalls.Load())

	// Token with plenty of remaining lifetime is served from cache.
	mgr.CacheToken("c2", "fresh-token", "", time.Hour)

	got, err = mgr.Token(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", got)
}

func TestToken_FailedRefreshDoesNotWedgeConnection(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("broker unavailable")}
	mgr := NewManager(refresher, zap.NewNop())

	_, err := mgr.Token(context.Background(), "c1")
	require.Error(t, err)

	// The in-flight entry must be released so the next call retries.
	refresher.err = nil

	got, err := mgr.Token(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, int64(2), refresher.refreshCalls.Load())
}

func TestDefaultToken_StaticFallback(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("token endpoint down")}
	mgr := NewManager(refresher, zap.NewNop(), WithStaticFallback("static-token"))

	got, err := mgr.DefaultToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static-token", got)
}

func TestDefaultToken_ErrorWithoutFallback(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("token endpoint down")}
	mgr := NewManager(refresher, zap.NewNop())

	_, err := mgr.DefaultToken(context.Background())
	assert.Error(t, err)
}

func TestDefaultToken_Refreshes(t *testing.T) {
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop())

	got, err := mgr.DefaultToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default-token-1", got)

	got, err = mgr.DefaultToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default-token-1", got, "second call must hit the cache")
	assert.Equal(t, int64(1), refresher.defaultRefreshCalls.Load())
}

func TestClearCache(t *testing.T) {
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop())

	_, err := mgr.Token(context.Background(), "c1")
	require.NoError(t, err)

	mgr.ClearCache("c1")

	_, err = mgr.Token(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), refresher.refreshCalls.Load())
}

func TestClearAll(t *testing.T) {
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop())

	_, err := mgr.Token(context.Background(), "a")
	require.NoError(t, err)
	_, err = mgr.Token(context.Background(), "b")
	require.NoError(t, err)

	mgr.ClearAll()

	_, err = mgr.Token(context.Background(), "a")
	require.NoError(t, err)
	_, err = mgr.Token(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, int64(4), refresher.refreshCalls.Load())
}

func TestCacheToken_SkipsRefreshAfterOAuthCallback(t *testing.T) {
	refresher := &fakeRefresher{}
	mgr := NewManager(refresher, zap.NewNop())

	mgr.CacheToken("c9", "callback-token", "callback-refresh", time.Hour)

	got, err := mgr.Token(context.Background(), "c9")
	require.NoError(t, err)
	assert.Equal(t, "callback-token", got)
	assert.Equal(t, int64(0), refresher.refreshCalls.Load())
}
