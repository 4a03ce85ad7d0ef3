// Package services – CatalogService
//
// This file implements directory discovery: querying every active federation
// instance for its advertised directories and merging the results. Instances
// are queried concurrently under a bounded fan-out; an instance that errors
// or times out is skipped silently — one partner's outage must never fail the
// whole discovery call. Per-instance results keep that instance's own
// ordering; no ordering is guaranteed across instances.
//
// Fetched listings are cached per instance for a short TTL so that repeated
// discovery calls (e.g. a user browsing with different category filters) do
// not hammer partners.
package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/partner"
	"github.com/launchdir/go-federation-backend/internal/repo"
)

// DirectoryLister fetches the directory listing of one partner instance.
// Implemented by *partner.Client; faked in tests.
type DirectoryLister interface {
	ListDirectories(ctx context.Context, baseURL string) ([]partner.RemoteDirectory, error)
}

// DiscoverFilter narrows a discovery result. Zero values mean "no filter".
type DiscoverFilter struct {
	Category string
	Limit    int
}

// CatalogService merges directory listings from all active instances.
type CatalogService struct {
	// DB is the GORM handle used to load the active instance set.
	DB *gorm.DB
	// Client fetches listings from partners.
	Client DirectoryLister

	// Concurrency bounds the instance fan-out; values < 1 mean 5.
	Concurrency int
	// PerInstanceTimeout bounds each listing request; values <= 0 mean 10s.
	PerInstanceTimeout time.Duration
	// CacheTTL bounds how long a fetched listing is reused; <= 0 disables
	// caching.
	CacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cachedListing
}

type cachedListing struct {
	dirs    []partner.RemoteDirectory
	fetched time.Time
}

// NewCatalogService constructs a CatalogService with default bounds.
func NewCatalogService(db *gorm.DB, client DirectoryLister) *CatalogService {
	return &CatalogService{
		DB:                 db,
		Client:             client,
		Concurrency:        5,
		PerInstanceTimeout: 10 * time.Second,
		CacheTTL:           time.Minute,
		cache:              make(map[string]cachedListing),
	}
}

// Discover fetches and merges the directories of all active instances,
// applying the optional category filter and result limit. It returns once
// every instance request has resolved (successfully or not); total latency is
// bounded by the per-instance timeout and the fan-out width, not by the
// number of slow instances in sequence.
func (s *CatalogService) Discover(ctx context.Context, filter DiscoverFilter) ([]partner.RemoteDirectory, error) {
	tr := otel.Tracer("services/CatalogService")
	ctx, span := tr.Start(ctx, "Discover",
		trace.WithAttributes(
			attribute.String("filter.category", filter.Category),
			attribute.Int("filter.limit", filter.Limit),
		),
	)
	defer span.End()

	instances, err := repo.ListInstances(ctx, s.DB, domain.InstanceActive)
	if err != nil {
		return nil, err
	}

	perInstance := make([][]partner.RemoteDirectory, len(instances))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit < 1 {
		limit = 5
	}
	g.SetLimit(limit)

	for i, inst := range instances {
		i, baseURL := i, inst.BaseURL
		g.Go(func() error {
			// Partner failures stay local to one slot; never abort the group.
			perInstance[i] = s.listOne(gctx, baseURL)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]partner.RemoteDirectory, 0)
	for _, dirs := range perInstance {
		for _, d := range dirs {
			if filter.Category != "" && d.Category != filter.Category {
				continue
			}
			out = append(out, d)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	span.SetAttributes(attribute.Int("directories.count", len(out)))
	return out, nil
}

// listOne returns the (possibly cached) listing of one instance, tagged with
// the instance URL. Failures yield an empty slice.
func (s *CatalogService) listOne(ctx context.Context, baseURL string) []partner.RemoteDirectory {
	if dirs, ok := s.cached(baseURL); ok {
		return dirs
	}

	timeout := s.PerInstanceTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dirs, err := s.Client.ListDirectories(ctx, baseURL)
	if err != nil {
		return nil
	}
	for i := range dirs {
		dirs[i].InstanceURL = baseURL
	}

	s.store(baseURL, dirs)
	return dirs
}

func (s *CatalogService) cached(baseURL string) ([]partner.RemoteDirectory, bool) {
	if s.CacheTTL <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[baseURL]
	if !ok || time.Since(entry.fetched) > s.CacheTTL {
		return nil, false
	}
	return entry.dirs, true
}

func (s *CatalogService) store(baseURL string, dirs []partner.RemoteDirectory) {
	if s.CacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = make(map[string]cachedListing)
	}
	s.cache[baseURL] = cachedListing{dirs: dirs, fetched: time.Now()}
}
