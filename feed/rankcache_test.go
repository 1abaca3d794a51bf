package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fitspo-feed/feed"
	"fitspo-feed/feed/inmemoryimpl"

	"github.com/stretchr/testify/suite"
)

func TestRankCache(t *testing.T) {
	suite.Run(t, new(RankCacheSuite))
}

type RankCacheSuite struct {
	suite.Suite

	store *inmemoryimpl.InMemoryManager
	stub  *stubStore
	cache *feed.RankCache
}

func (s *RankCacheSuite) SetupTest() {
	s.store = inmemoryimpl.NewInMemoryManager()
	s.store.Put(manyPosts(150, asOf)...)
	s.stub = &stubStore{inner: s.store}
	hot := feed.NewHotPaginator(s.stub, feed.WithLocation(time.UTC))
	s.cache = feed.NewRankCache(hot, feed.WithRankLocation(time.UTC))
}

func (s *RankCacheSuite) TestEmptyBeforeFirstRefresh() {
	_, ok := s.cache.Rank("p000")
	s.Require().False(ok)
	_, ok = s.cache.LastRefresh()
	s.Require().False(ok)
}

func (s *RankCacheSuite) TestRanksTopHundred() {
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, asOf))

	rank, ok := s.cache.Rank("p000")
	s.Require().True(ok)
	s.Require().Equal(1, rank)
	rank, ok = s.cache.Rank("p099")
	s.Require().True(ok)
	s.Require().Equal(100, rank)
	_, ok = s.cache.Rank("p100")
	s.Require().False(ok)
	s.Require().Equal(100, s.cache.Len())

	day, ok := s.cache.LastRefresh()
	s.Require().True(ok)
	s.Require().Equal(feed.StartOfDay(asOf, time.UTC), day)
}

func (s *RankCacheSuite) TestRefreshOncePerDay() {
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, asOf))
	calls := s.stub.scoreCalls.Load()
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, asOf.Add(time.Hour)))
	s.Require().EqualValues(1, s.cache.Scans())
	s.Require().Equal(calls, s.stub.scoreCalls.Load())

	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, asOf.Add(24*time.Hour)))
	s.Require().EqualValues(2, s.cache.Scans())
	// Yesterday's posts drop out of the new day's ranking.
	s.Require().Zero(s.cache.Len())
}

func (s *RankCacheSuite) TestConcurrentRefreshSharesOneScan() {
	s.stub.gate = make(chan struct{})

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	ranks := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.cache.RefreshIfNeeded(ctx, asOf)
			ranks[i], _ = s.cache.Rank("p042")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(s.stub.gate)
	wg.Wait()

	s.Require().EqualValues(1, s.cache.Scans())
	for i := 0; i < callers; i++ {
		s.Require().NoError(errs[i])
		s.Require().Equal(43, ranks[i])
	}
}

func (s *RankCacheSuite) TestFailedRefreshKeepsLastGoodTable() {
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, asOf))

	boom := errors.New("unavailable")
	s.stub.failWith(boom)
	tomorrow := asOf.Add(24 * time.Hour)
	err := s.cache.RefreshIfNeeded(ctx, tomorrow)
	s.Require().ErrorIs(err, feed.ErrStoreFetchFailed)
	s.Require().ErrorIs(err, boom)

	rank, ok := s.cache.Rank("p000")
	s.Require().True(ok)
	s.Require().Equal(1, rank)
	day, _ := s.cache.LastRefresh()
	s.Require().Equal(feed.StartOfDay(asOf, time.UTC), day)

	s.stub.failWith(nil)
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, tomorrow))
	day, _ = s.cache.LastRefresh()
	s.Require().Equal(feed.StartOfDay(tomorrow, time.UTC), day)
}

func (s *RankCacheSuite) TestEarlierDayNeverReplacesLaterTable() {
	tomorrow := asOf.Add(24 * time.Hour)
	s.store.Put(post("next", "unext", tomorrow, 500, 0, 0))

	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, tomorrow))
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, asOf))
	s.Require().NoError(s.cache.RefreshIfNeeded(ctx, tomorrow))

	s.Require().EqualValues(1, s.cache.Scans())
	day, ok := s.cache.LastRefresh()
	s.Require().True(ok)
	s.Require().Equal(feed.StartOfDay(tomorrow, time.UTC), day)
	rank, ok := s.cache.Rank("next")
	s.Require().True(ok)
	s.Require().Equal(1, rank)
}

// dayGatedPager blocks fetches for one day until gate is closed.
type dayGatedPager struct {
	inner feed.HotPager
	day   time.Time
	gate  chan struct{}
}

func (p *dayGatedPager) FetchHotPage(ctx context.Context, cursor *feed.Cursor, pageSize int, asOf time.Time) (feed.FeedPage, error) {
	if asOf.Equal(p.day) {
		<-p.gate
	}
	return p.inner.FetchHotPage(ctx, cursor, pageSize, asOf)
}

func (s *RankCacheSuite) TestLateRebuildOfEarlierDayIsDropped() {
	tomorrow := asOf.Add(24 * time.Hour)
	s.store.Put(post("next", "unext", tomorrow, 500, 0, 0))
	pager := &dayGatedPager{
		inner: feed.NewHotPaginator(s.store, feed.WithLocation(time.UTC)),
		day:   feed.StartOfDay(asOf, time.UTC),
		gate:  make(chan struct{}),
	}
	cache := feed.NewRankCache(pager, feed.WithRankLocation(time.UTC))

	done := make(chan error, 1)
	go func() { done <- cache.RefreshIfNeeded(ctx, asOf) }()
	s.Require().Eventually(func() bool { return cache.Scans() == 1 }, time.Second, 5*time.Millisecond)

	s.Require().NoError(cache.RefreshIfNeeded(ctx, tomorrow))
	close(pager.gate)
	s.Require().NoError(<-done)

	day, _ := cache.LastRefresh()
	s.Require().Equal(feed.StartOfDay(tomorrow, time.UTC), day)
	rank, ok := cache.Rank("next")
	s.Require().True(ok)
	s.Require().Equal(1, rank)
	s.Require().EqualValues(2, cache.Scans())
}

func (s *RankCacheSuite) TestCancelledCallerDoesNotAbortRebuild() {
	s.stub.gate = make(chan struct{})
	cctx, cancel := context.WithCancel(ctx)

	done := make(chan error, 1)
	go func() { done <- s.cache.RefreshIfNeeded(cctx, asOf) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Require().ErrorIs(<-done, context.Canceled)

	close(s.stub.gate)
	s.Require().Eventually(func() bool {
		_, ok := s.cache.Rank("p000")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func (s *RankCacheSuite) TestSmallRankLimitAcrossPages() {
	hot := feed.NewHotPaginator(s.store, feed.WithLocation(time.UTC))
	cache := feed.NewRankCache(hot, feed.WithRankLocation(time.UTC), feed.WithRankPageSize(7), feed.WithRankLimit(20))

	s.Require().NoError(cache.RefreshIfNeeded(ctx, asOf))
	s.Require().Equal(20, cache.Len())
	rank, ok := cache.Rank("p019")
	s.Require().True(ok)
	s.Require().Equal(20, rank)
}

type memorySnapshots struct {
	mu    sync.Mutex
	saved map[string]map[string]int
}

func (m *memorySnapshots) LoadRanks(_ context.Context, day string) (map[string]int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ranks, ok := m.saved[day]
	return ranks, ok, nil
}

func (m *memorySnapshots) SaveRanks(_ context.Context, day string, ranks map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[day] = ranks
	return nil
}

func (s *RankCacheSuite) TestSnapshotsWarmAnotherCache() {
	snaps := &memorySnapshots{saved: map[string]map[string]int{}}
	hot := feed.NewHotPaginator(s.stub, feed.WithLocation(time.UTC))
	first := feed.NewRankCache(hot, feed.WithRankLocation(time.UTC), feed.WithSnapshots(snaps))
	s.Require().NoError(first.RefreshIfNeeded(ctx, asOf))
	s.Require().Len(snaps.saved["2026-10-15"], 100)
	calls := s.stub.scoreCalls.Load()

	second := feed.NewRankCache(hot, feed.WithRankLocation(time.UTC), feed.WithSnapshots(snaps))
	s.Require().NoError(second.RefreshIfNeeded(ctx, asOf))
	s.Require().Zero(second.Scans())
	s.Require().Equal(calls, s.stub.scoreCalls.Load())
	rank, ok := second.Rank("p001")
	s.Require().True(ok)
	s.Require().Equal(2, rank)
}
