package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-alluviamaps/internal/shared/geo"
)

// ErrNoSource is returned by Refresh when no remote source is configured.
var ErrNoSource = errors.New("remote data source not configured")

// DefaultTTL is how long a fetched snapshot is served without a remote call.
const DefaultTTL = 5 * time.Minute

type Options struct {
	TTL time.Duration
	// SplitFreshness gives trails and sites independent freshness windows.
	// When false a fetch of either collection refreshes the window of both.
	SplitFreshness bool
	Logger         *slog.Logger
}

// DataService serves trails and sites from a TTL snapshot backed by a Source.
// Remote failures are logged and never returned: callers get the last good
// snapshot, or an empty slice.
//
// Cached slices are shared between callers and must not be modified.
type DataService struct {
	source Source
	ttl    time.Duration
	split  bool
	log    *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	trails      []Trail
	sites       []Site
	hasTrails   bool
	hasSites    bool
	lastFetch   time.Time
	trailsFetch time.Time
	sitesFetch  time.Time
}

// NewDataService builds a cache over source. A nil source is treated as an
// unconfigured remote: every fetch degrades to an empty result.
func NewDataService(source Source, opts Options) *DataService {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DataService{
		source: source,
		ttl:    opts.TTL,
		split:  opts.SplitFreshness,
		log:    opts.Logger.With("component", "records"),
		now:    time.Now,
	}
}

// FetchTrails returns the public trails, from the snapshot when useCache is
// set and it is still fresh.
func (s *DataService) FetchTrails(ctx context.Context, useCache bool) []Trail {
	s.mu.Lock()
	if useCache && s.hasTrails && s.freshLocked(s.trailsFetch) {
		trails := s.trails
		s.mu.Unlock()
		return trails
	}
	s.mu.Unlock()

	if s.source == nil {
		s.log.Warn("remote data source not configured", "collection", KindTrails)
		return []Trail{}
	}

	fetched, err := s.loadTrails(ctx)
	if err != nil {
		s.log.Error("fetch trails failed", "err", err)
		return s.cachedTrails()
	}
	return fetched
}

// FetchSites returns the public sites, from the snapshot when useCache is
// set and it is still fresh.
func (s *DataService) FetchSites(ctx context.Context, useCache bool) []Site {
	s.mu.Lock()
	if useCache && s.hasSites && s.freshLocked(s.sitesFetch) {
		sites := s.sites
		s.mu.Unlock()
		return sites
	}
	s.mu.Unlock()

	if s.source == nil {
		s.log.Warn("remote data source not configured", "collection", KindSites)
		return []Site{}
	}

	fetched, err := s.loadSites(ctx)
	if err != nil {
		s.log.Error("fetch sites failed", "err", err)
		return s.cachedSites()
	}
	return fetched
}

// Refresh reloads both collections from the remote source and reports the
// first failure. Unlike the Fetch methods it does not fall back to the
// snapshot, so batch callers can tell an empty map from a failed one.
func (s *DataService) Refresh(ctx context.Context) error {
	if s.source == nil {
		return ErrNoSource
	}
	if _, err := s.loadTrails(ctx); err != nil {
		return fmt.Errorf("refresh trails: %w", err)
	}
	if _, err := s.loadSites(ctx); err != nil {
		return fmt.Errorf("refresh sites: %w", err)
	}
	return nil
}

func (s *DataService) loadTrails(ctx context.Context) ([]Trail, error) {
	fetched, err := s.source.PublicTrails(ctx)
	if err != nil {
		return nil, err
	}
	fillDistances(fetched)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trails = fetched
	s.hasTrails = true
	s.markFetchedLocked(&s.trailsFetch)
	return fetched, nil
}

func (s *DataService) loadSites(ctx context.Context) ([]Site, error) {
	fetched, err := s.source.PublicSites(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites = fetched
	s.hasSites = true
	s.markFetchedLocked(&s.sitesFetch)
	return fetched, nil
}

// FetchInBounds fetches both collections through the cache and keeps the
// trails with at least one vertex inside b and the sites whose point is inside b.
func (s *DataService) FetchInBounds(ctx context.Context, b geo.Bounds) InBounds {
	var (
		wg     sync.WaitGroup
		trails []Trail
		sites  []Site
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		trails = s.FetchTrails(ctx, true)
	}()
	go func() {
		defer wg.Done()
		sites = s.FetchSites(ctx, true)
	}()
	wg.Wait()

	out := InBounds{Trails: []Trail{}, Sites: []Site{}}
	for _, t := range trails {
		if b.ContainsAny(t.Coordinates) {
			out.Trails = append(out.Trails, t)
		}
	}
	for _, st := range sites {
		if b.Contains(st.Coordinates) {
			out.Sites = append(out.Sites, st)
		}
	}
	return out
}

// SearchTrails always goes to the remote source; results are never cached.
func (s *DataService) SearchTrails(ctx context.Context, query string) []Trail {
	if s.source == nil {
		s.log.Warn("remote data source not configured", "collection", KindTrails)
		return []Trail{}
	}
	trails, err := s.source.SearchTrails(ctx, query)
	if err != nil {
		s.log.Error("search trails failed", "query", query, "err", err)
		return []Trail{}
	}
	fillDistances(trails)
	return trails
}

// SearchSites always goes to the remote source; results are never cached.
func (s *DataService) SearchSites(ctx context.Context, query string) []Site {
	if s.source == nil {
		s.log.Warn("remote data source not configured", "collection", KindSites)
		return []Site{}
	}
	sites, err := s.source.SearchSites(ctx, query)
	if err != nil {
		s.log.Error("search sites failed", "query", query, "err", err)
		return []Site{}
	}
	return sites
}

// Search dispatches on kind and returns []Trail or []Site. ok is false for
// an unknown kind.
func (s *DataService) Search(ctx context.Context, query string, kind Kind) (results any, ok bool) {
	switch kind {
	case KindTrails:
		return s.SearchTrails(ctx, query), true
	case KindSites:
		return s.SearchSites(ctx, query), true
	default:
		return nil, false
	}
}

// Invalidate drops both cached collections so the next fetch goes remote.
func (s *DataService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trails = nil
	s.sites = nil
	s.hasTrails = false
	s.hasSites = false
	s.lastFetch = time.Time{}
	s.trailsFetch = time.Time{}
	s.sitesFetch = time.Time{}
}

func (s *DataService) cachedTrails() []Trail {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTrails {
		return []Trail{}
	}
	return s.trails
}

func (s *DataService) cachedSites() []Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSites {
		return []Site{}
	}
	return s.sites
}

func (s *DataService) freshLocked(own time.Time) bool {
	stamp := s.lastFetch
	if s.split {
		stamp = own
	}
	if stamp.IsZero() {
		return false
	}
	return s.now().Sub(stamp) < s.ttl
}

func (s *DataService) markFetchedLocked(own *time.Time) {
	now := s.now()
	*own = now
	s.lastFetch = now
}

func fillDistances(trails []Trail) {
	for i := range trails {
		if trails[i].DistanceKm == 0 && len(trails[i].Coordinates) > 1 {
			trails[i].DistanceKm = geo.PathLengthKm(trails[i].Coordinates)
		}
	}
}
