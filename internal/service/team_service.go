package service

import (
	"context"
	"fmt"
	"time"

	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	teamCacheTTL     = 60 * time.Second
	teamCacheCleanup = 5 * time.Minute
)

// TeamService implements ports.TeamStore: a read-through cache over the
// team repository. Writes invalidate, so every reader sees a fresh row
// within the TTL bound at worst.
type TeamService struct {
	repo  ports.TeamRepository
	cache *gocache.Cache
	log   zerolog.Logger
}

// NewTeamService creates the cached team store.
func NewTeamService(repo ports.TeamRepository, log zerolog.Logger) *TeamService {
	return &TeamService{
		repo:  repo,
		cache: gocache.New(teamCacheTTL, teamCacheCleanup),
		log:   log,
	}
}

// Lookup returns the team or nil when unknown.
func (s *TeamService) Lookup(ctx context.Context, slug string) (*domain.Team, error) {
	if v, found := s.cache.Get(slug); found {
		return v.(*domain.Team), nil
	}

	team, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("team lookup: %w", err)
	}
	if team != nil {
		s.cache.Set(slug, team, gocache.DefaultExpiration)
	}
	return team, nil
}

// Register persists a new team and publishes the cache invalidation.
func (s *TeamService) Register(ctx context.Context, team *domain.Team) error {
	if !domain.ValidSlug(team.Slug) {
		return fmt.Errorf("invalid team slug: %q", team.Slug)
	}
	if err := s.repo.Create(ctx, team); err != nil {
		return fmt.Errorf("team register: %w", err)
	}
	s.Invalidate(team.Slug)
	s.log.Info().Str("team_slug", team.Slug).Msg("team registered")
	return nil
}

// Invalidate drops the cached entry for slug.
func (s *TeamService) Invalidate(slug string) {
	s.cache.Delete(slug)
}
