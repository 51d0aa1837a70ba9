package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"acquiring-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTeamRepo counts repository hits so cache behavior is observable.
type countingTeamRepo struct {
	teams map[string]*domain.Team
	gets  atomic.Int32
}

func (r *countingTeamRepo) Create(_ context.Context, t *domain.Team) error {
	r.teams[t.Slug] = t
	return nil
}

func (r *countingTeamRepo) GetBySlug(_ context.Context, slug string) (*domain.Team, error) {
	r.gets.Add(1)
	t, ok := r.teams[slug]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *countingTeamRepo) Update(_ context.Context, t *domain.Team) error {
	r.teams[t.Slug] = t
	return nil
}

func testTeam(slug string) *domain.Team {
	return &domain.Team{
		ID:           uuid.New(),
		Slug:         slug,
		PasswordHash: testPasswordHash,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

func TestTeamService_LookupCaches(t *testing.T) {
	repo := &countingTeamRepo{teams: map[string]*domain.Team{"demo-team": testTeam("demo-team")}}
	svc := NewTeamService(repo, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		team, err := svc.Lookup(ctx, "demo-team")
		require.NoError(t, err)
		require.NotNil(t, team)
	}

	assert.Equal(t, int32(1), repo.gets.Load(), "repeated lookups served from cache")
}

func TestTeamService_UnknownNotCached(t *testing.T) {
	repo := &countingTeamRepo{teams: map[string]*domain.Team{}}
	svc := NewTeamService(repo, zerolog.Nop())
	ctx := context.Background()

	team, err := svc.Lookup(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, team)

	// A later registration must be visible immediately.
	repo.teams["ghost"] = testTeam("ghost")
	team, err = svc.Lookup(ctx, "ghost")
	require.NoError(t, err)
	assert.NotNil(t, team)
}

func TestTeamService_RegisterInvalidates(t *testing.T) {
	repo := &countingTeamRepo{teams: map[string]*domain.Team{"demo-team": testTeam("demo-team")}}
	svc := NewTeamService(repo, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "demo-team")
	require.NoError(t, err)

	updated := testTeam("demo-team")
	updated.Active = false
	require.NoError(t, svc.Register(ctx, updated))

	team, err := svc.Lookup(ctx, "demo-team")
	require.NoError(t, err)
	assert.False(t, team.Active, "write invalidated the cached entry")
}

func TestTeamService_RegisterRejectsBadSlug(t *testing.T) {
	repo := &countingTeamRepo{teams: map[string]*domain.Team{}}
	svc := NewTeamService(repo, zerolog.Nop())

	err := svc.Register(context.Background(), testTeam("x"))
	assert.Error(t, err, "slug below 3 chars")

	err = svc.Register(context.Background(), testTeam("bad slug!"))
	assert.Error(t, err)
}
