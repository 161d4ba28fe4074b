package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referral/referral/internal/platform/cache"
)

const (
	specialtiesKey      = "directory:specialties"
	servicesKeyFmt      = "directory:services:%s"
	teamsKeyFmt         = "directory:teams:%s"
	practitionersKeyFmt = "directory:practitioners:%s"
	defaultCacheTTL     = 5 * time.Minute
)

// Lookup serves directory reads through the cache and writes through to the
// repository, invalidating as it goes. Cache failures degrade to database
// reads rather than failing the request.
type Lookup struct {
	repo   Repository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewLookup(repo Repository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Lookup {
	if c == nil {
		c = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Lookup{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger.With().Str("component", "directory").Logger(),
	}
}

// Specialties returns the active specialties, cached.
func (l *Lookup) Specialties(ctx context.Context) ([]*Specialty, error) {
	var cached []*Specialty
	err := cache.GetJSON(ctx, l.cache, specialtiesKey, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		l.logger.Warn().Err(err).Msg("specialty cache read failed")
	}

	items, err := l.repo.ListSpecialties(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, l.cache, specialtiesKey, items, l.ttl); err != nil {
		l.logger.Warn().Err(err).Msg("specialty cache write failed")
	}
	return items, nil
}

// Services returns the active services under a specialty, cached per
// specialty.
func (l *Lookup) Services(ctx context.Context, specialtyID uuid.UUID) ([]*Service, error) {
	key := fmt.Sprintf(servicesKeyFmt, specialtyID)

	var cached []*Service
	err := cache.GetJSON(ctx, l.cache, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		l.logger.Warn().Err(err).Msg("service cache read failed")
	}

	if _, err := l.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	items, err := l.repo.ListServices(ctx, specialtyID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, l.cache, key, items, l.ttl); err != nil {
		l.logger.Warn().Err(err).Msg("service cache write failed")
	}
	return items, nil
}

// Teams returns the active teams under a specialty, cached per specialty.
func (l *Lookup) Teams(ctx context.Context, specialtyID uuid.UUID) ([]*Team, error) {
	key := fmt.Sprintf(teamsKeyFmt, specialtyID)

	var cached []*Team
	err := cache.GetJSON(ctx, l.cache, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		l.logger.Warn().Err(err).Msg("team cache read failed")
	}

	if _, err := l.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	items, err := l.repo.ListTeams(ctx, specialtyID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, l.cache, key, items, l.ttl); err != nil {
		l.logger.Warn().Err(err).Msg("team cache write failed")
	}
	return items, nil
}

// Practitioners returns the active healthcare professionals under a
// specialty, cached per specialty.
func (l *Lookup) Practitioners(ctx context.Context, specialtyID uuid.UUID) ([]*Practitioner, error) {
	key := fmt.Sprintf(practitionersKeyFmt, specialtyID)

	var cached []*Practitioner
	err := cache.GetJSON(ctx, l.cache, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		l.logger.Warn().Err(err).Msg("practitioner cache read failed")
	}

	if _, err := l.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	items, err := l.repo.ListPractitioners(ctx, specialtyID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, l.cache, key, items, l.ttl); err != nil {
		l.logger.Warn().Err(err).Msg("practitioner cache write failed")
	}
	return items, nil
}

// SpecialtyByName resolves a specialty from its display name, uncached: it
// backs validation on the write path, where staleness matters more than
// latency.
func (l *Lookup) SpecialtyByName(ctx context.Context, name string) (*Specialty, error) {
	return l.repo.GetSpecialtyByName(ctx, name)
}

// AddSpecialty creates a specialty and drops the cached list.
func (l *Lookup) AddSpecialty(ctx context.Context, code, name string) (*Specialty, error) {
	if name == "" {
		return nil, errors.New("specialty name is required")
	}
	s := &Specialty{ID: uuid.New(), Code: code, Name: name, Active: true}
	if err := l.repo.CreateSpecialty(ctx, s); err != nil {
		return nil, err
	}
	if err := l.cache.Delete(ctx, specialtiesKey); err != nil {
		l.logger.Warn().Err(err).Msg("specialty cache invalidation failed")
	}
	return s, nil
}

// AddService creates a service under a specialty and drops that specialty's
// cached service list.
func (l *Lookup) AddService(ctx context.Context, specialtyID uuid.UUID, name, location string) (*Service, error) {
	if name == "" {
		return nil, errors.New("service name is required")
	}
	if _, err := l.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	s := &Service{ID: uuid.New(), SpecialtyID: specialtyID, Name: name, Location: location, Active: true}
	if err := l.repo.CreateService(ctx, s); err != nil {
		return nil, err
	}
	if err := l.cache.Delete(ctx, fmt.Sprintf(servicesKeyFmt, specialtyID)); err != nil {
		l.logger.Warn().Err(err).Msg("service cache invalidation failed")
	}
	return s, nil
}

// AddTeam creates a team under a specialty and drops that specialty's cached
// team list.
func (l *Lookup) AddTeam(ctx context.Context, specialtyID uuid.UUID, name string) (*Team, error) {
	if name == "" {
		return nil, errors.New("team name is required")
	}
	if _, err := l.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	t := &Team{ID: uuid.New(), SpecialtyID: specialtyID, Name: name, Active: true}
	if err := l.repo.CreateTeam(ctx, t); err != nil {
		return nil, err
	}
	if err := l.cache.Delete(ctx, fmt.Sprintf(teamsKeyFmt, specialtyID)); err != nil {
		l.logger.Warn().Err(err).Msg("team cache invalidation failed")
	}
	return t, nil
}

// AddPractitioner creates a healthcare-professional entry under a specialty
// and drops that specialty's cached practitioner list.
func (l *Lookup) AddPractitioner(ctx context.Context, specialtyID uuid.UUID, name, role string) (*Practitioner, error) {
	if name == "" {
		return nil, errors.New("practitioner name is required")
	}
	if _, err := l.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	p := &Practitioner{ID: uuid.New(), SpecialtyID: specialtyID, Name: name, Role: role, Active: true}
	if err := l.repo.CreatePractitioner(ctx, p); err != nil {
		return nil, err
	}
	if err := l.cache.Delete(ctx, fmt.Sprintf(practitionersKeyFmt, specialtyID)); err != nil {
		l.logger.Warn().Err(err).Msg("practitioner cache invalidation failed")
	}
	return p, nil
}
