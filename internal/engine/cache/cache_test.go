package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
)

func textSource(name string, rev source.Revision, body string) *source.TextSource {
	return source.NewTextSource(source.NewIdentifier(name, rev), name+".yang", []byte(body))
}

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

func TestOfferAndGetSource(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	src := textSource("test", "2012-12-12", "module test {}")
	require.True(t, c.Offer(src))

	got, err := c.GetSource(context.Background(), source.NewIdentifier("test", "2012-12-12"))
	require.NoError(t, err)
	assert.Same(t, src, got)

	candidates := reg.FindProviders(source.NewIdentifier("test", "2012-12-12"))
	require.Len(t, candidates, 1)
	assert.Equal(t, source.CostImmediate, candidates[0].Source.Cost)
	assert.Equal(t, source.TypeText, candidates[0].Source.Type)

	latest, err := c.GetSource(context.Background(), source.NewIdentifier("test", ""))
	require.NoError(t, err)
	assert.Same(t, src, latest)
}

func TestGetMissingSourceFails(t *testing.T) {
	c := NewSoftCache(registry.New("test"), source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.GetSource(context.Background(), source.NewIdentifier("missing", "2012-12-12"))
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSourceNotFound), "got %v", err)
}

func TestOfferRejectsForeignType(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeAST, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	assert.False(t, c.Offer(textSource("test", "", "module test {}")))
	assert.Equal(t, 0, reg.Len())
}

func TestTwoCachesShareRegistry(t *testing.T) {
	reg := registry.New("shared")
	c1 := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	c2 := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c1.Close(); _ = c2.Close() })

	body := "module test { namespace urn:test; prefix t; }"
	require.True(t, c1.Offer(textSource("test", "2012-12-12", body)))
	require.True(t, c2.Offer(textSource("test", "2012-12-12", body)))

	id := source.NewIdentifier("test", "2012-12-12")
	a, err := c1.GetSource(context.Background(), id)
	require.NoError(t, err)
	b, err := c2.GetSource(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, reg.FindProviders(id), 2)
}

func TestReofferReplacesAdvertisement(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	c.Offer(textSource("test", "2012-12-12", "module test { }"))
	second := textSource("test", "2012-12-12", "module test { description x; }")
	c.Offer(second)

	assert.Equal(t, 1, reg.Len())
	got, err := c.GetSource(context.Background(), second.Identifier())
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestExpiringEntriesAreEvicted(t *testing.T) {
	reg := registry.New("test")
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewExpiringCache(reg, source.TypeYANG, time.Minute, WithSweepInterval(0))
	c.now = clock.Now
	t.Cleanup(func() { _ = c.Close() })

	id := source.NewIdentifier("test", "2012-12-12")
	c.Offer(textSource("test", "2012-12-12", "module test {}"))
	_, err := c.GetSource(context.Background(), id)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, reg.Len(), "eviction must de-register the source")

	_, err = c.GetSource(context.Background(), id)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSourceNotFound), "got %v", err)
}

func TestExpiredLookupDeregisters(t *testing.T) {
	reg := registry.New("test")
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewExpiringCache(reg, source.TypeYANG, time.Second, WithSweepInterval(0))
	c.now = clock.Now
	t.Cleanup(func() { _ = c.Close() })

	c.Offer(textSource("test", "", "module test {}"))
	clock.Advance(time.Second)
	_, err := c.GetSource(context.Background(), source.NewIdentifier("test", ""))
	require.Error(t, err)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryPressureReleasesSoftEntries(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0), WithMaxHeapMB(10), WithPrunePercent(50))
	t.Cleanup(func() { _ = c.Close() })

	heap := uint64(100)
	c.heapUsage = func() uint64 { return heap }
	for _, name := range []string{"a", "b", "c", "d"} {
		c.Offer(textSource(name, "", "module "+name+" {}"))
	}

	assert.Equal(t, 4, c.Sweep())
	assert.Equal(t, 0, reg.Len())

	heap = 1
	c.Offer(textSource("e", "", "module e {}"))
	assert.Equal(t, 0, c.Sweep())
	assert.Equal(t, 1, reg.Len())
}

func TestCapacityEvictionDeregisters(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0), WithCapacity(1))
	t.Cleanup(func() { _ = c.Close() })

	c.Offer(textSource("a", "", "module a {}"))
	c.Offer(textSource("b", "", "module b {}"))

	assert.Equal(t, 1, reg.Len())
	assert.Empty(t, reg.FindProviders(source.NewIdentifier("a", "")))
}

func TestCloseRevokesEverything(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(time.Hour))

	c.Offer(textSource("test", "2012-12-12", "module test {}"))
	require.NoError(t, c.Close())

	assert.Equal(t, 0, reg.Len())
	_, err := c.GetSource(context.Background(), source.NewIdentifier("test", "2012-12-12"))
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSourceNotFound))
	assert.False(t, c.Offer(textSource("test", "2012-12-12", "module test {}")))
}

func TestInvalidateDropsEveryRevision(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	require.True(t, c.Offer(textSource("test", "2012-12-12", "module test {}")))
	require.True(t, c.Offer(textSource("test", "2013-01-01", "module test {}")))
	require.True(t, c.Offer(textSource("other", "", "module other {}")))

	assert.Equal(t, 2, c.Invalidate("test"))
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, reg.FindProviders(source.NewIdentifier("test", "")))
	assert.Len(t, reg.FindProviders(source.NewIdentifier("other", "")), 1)
	assert.Zero(t, c.Invalidate("test"))
}

func TestEvictWaitsForReplacingOffer(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	id := source.NewIdentifier("test", "2012-12-12")
	require.True(t, c.Offer(textSource("test", "2012-12-12", "module test { prefix a; }")))
	stale, ok := c.entries.Peek(id.Key())
	require.True(t, ok)

	replacement := textSource("test", "2012-12-12", "module test { prefix b; }")
	c.mu.Lock()
	done := make(chan struct{})
	go func() {
		c.evict(id.Key(), stale, "invalidated")
		close(done)
	}()
	select {
	case <-done:
		c.mu.Unlock()
		t.Fatal("evict did not wait for the offer in progress")
	case <-time.After(50 * time.Millisecond):
	}
	c.offerLocked(replacement)
	c.mu.Unlock()
	<-done

	got, err := c.GetSource(context.Background(), id)
	require.NoError(t, err)
	assert.Same(t, replacement, got)
	assert.Len(t, reg.FindProviders(id), 1)
}

func TestConcurrentOfferAndInvalidateKeepOneAdvertisement(t *testing.T) {
	reg := registry.New("test")
	c := NewSoftCache(reg, source.TypeYANG, WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })
	id := source.NewIdentifier("test", "2012-12-12")

	for round := 0; round < 200; round++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Offer(textSource("test", "2012-12-12", "module test {}"))
		}()
		go func() {
			defer wg.Done()
			c.Invalidate("test")
		}()
		wg.Wait()

		_, cached := c.entries.Peek(id.Key())
		want := 0
		if cached {
			want = 1
		}
		require.Len(t, reg.FindProviders(id), want, "round %d", round)
	}
}
