// Package resolver selects the single retention policy that applies to a
// file, given the container it lives in, its path and its extension.
//
// Resolution is deterministic and side-effect free:
//
//  1. Fetch the policies assigned to the container
//  2. Keep active policies
//  3. Keep policies whose path filter admits the path
//  4. Keep policies whose type filter admits the extension
//  5. Pick the highest priority; ties go to the lowest policy ID
//
// A nil result means no policy applies. It is not an error.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/policy"
)

// PolicySource returns the policies assigned to a container, ordered by
// priority descending and ID ascending.
type PolicySource interface {
	PoliciesForContainer(ctx context.Context, containerID string) ([]*retention.Policy, error)
}

// FileInfo is what the resolver needs to know about a file.
type FileInfo struct {
	ContainerID string
	Path        string
	Extension   string
}

// Config contains configuration for the resolver cache.
type Config struct {
	// CacheSize is the number of containers whose policy lists are cached.
	// 0 disables caching.
	CacheSize int

	// CacheTTL bounds how long a cached list is served.
	CacheTTL time.Duration
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheSize: 1024,
		CacheTTL:  5 * time.Minute,
	}
}

// Resolver resolves the applicable policy for files.
type Resolver struct {
	source PolicySource
	cache  *expirable.LRU[string, []*retention.Policy]
	logger *slog.Logger
}

// New creates a resolver over source. A nil config uses DefaultConfig.
func New(source PolicySource, config *Config) *Resolver {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Resolver{
		source: source,
		logger: slog.Default().With("component", "retention.resolver"),
	}
	if config.CacheSize > 0 {
		r.cache = expirable.NewLRU[string, []*retention.Policy](config.CacheSize, nil, config.CacheTTL)
	}
	return r
}

// Resolve returns the policy that applies to the file, or nil when none does.
func (r *Resolver) Resolve(ctx context.Context, file FileInfo) (*retention.Policy, error) {
	candidates, err := r.policiesFor(ctx, file.ContainerID)
	if err != nil {
		return nil, err
	}

	winner := Select(candidates, file)
	if winner == nil {
		r.logger.Debug("no policy applies",
			"container_id", file.ContainerID,
			"path", file.Path,
			"candidates", len(candidates),
		)
		return nil, nil
	}
	return winner.Clone(), nil
}

// Select applies the resolution filters to an already fetched policy list.
// The input order does not matter.
func Select(candidates []*retention.Policy, file FileInfo) *retention.Policy {
	var best *retention.Policy
	for _, p := range candidates {
		if !p.IsActive {
			continue
		}
		if !policy.MatchesPath(p, file.Path) {
			continue
		}
		if !policy.MatchesType(p, file.Extension) {
			continue
		}
		if best == nil || p.Priority > best.Priority ||
			(p.Priority == best.Priority && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

func (r *Resolver) policiesFor(ctx context.Context, containerID string) ([]*retention.Policy, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(containerID); ok {
			return cached, nil
		}
	}

	list, err := r.source.PoliciesForContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Add(containerID, list)
	}
	return list, nil
}

// PoliciesChanged drops every cached policy list. It is registered as a
// policy.ChangeListener so mutations are visible to the next resolution.
func (r *Resolver) PoliciesChanged() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
