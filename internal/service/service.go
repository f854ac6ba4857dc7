package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"offers-function/internal/cache"
	"offers-function/internal/database"
	"offers-function/internal/events"
	"offers-function/internal/features"
	"offers-function/internal/models"
	"offers-function/internal/tracing"
)

// Session is one connection's worth of offer statements.
type Session interface {
	ListActiveOffers(ctx context.Context) ([]models.Offer, error)
	InsertOffer(ctx context.Context, offer models.NewOffer) (int64, error)
	IncrementViews(ctx context.Context, id int64) (int64, error)
	DeactivateOffer(ctx context.Context, id int64) (int64, error)
	Close() error
}

// Store hands out sessions.
type Store interface {
	Session(ctx context.Context) (Session, error)
}

type dbStore struct {
	db *database.DB
}

func (s dbStore) Session(ctx context.Context) (Session, error) {
	sess, err := s.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// FromDB adapts a database handle to a Store.
func FromDB(db *database.DB) Store {
	return dbStore{db: db}
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Features *features.Manager
	Events   *events.Manager
	Log      zerolog.Logger
}

// Service implements the offer operations. Every call opens exactly one
// session and closes it before returning.
type Service struct {
	store    Store
	cache    cache.Cache
	cacheTTL time.Duration
	features *features.Manager
	events   *events.Manager
	log      zerolog.Logger

	// cacheMu orders listing fills against invalidations. generation is
	// bumped by every invalidation; a fill whose read started in an older
	// generation is dropped.
	cacheMu    sync.Mutex
	generation uint64
}

// NewService creates a new service instance.
func NewService(store Store, opts Options) *Service {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		store:    store,
		cache:    opts.Cache,
		cacheTTL: ttl,
		features: opts.Features,
		events:   opts.Events,
		log:      opts.Log,
	}
}

// ListActive returns the public projection of active offers, newest first.
func (s *Service) ListActive(ctx context.Context) (offers []models.PublicOffer, err error) {
	if s.cacheEnabled() {
		var cached []models.PublicOffer
		err := cache.GetJSON(ctx, s.cache, cache.ActiveOffersKey, &cached)
		if err == nil {
			tracing.SetListing(ctx, len(cached), true)
			return cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			s.log.Warn().Err(err).Msg("offers cache read failed")
		}
	}

	gen := s.currentGeneration()

	sess, err := s.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess, &err)

	rows, err := sess.ListActiveOffers(ctx)
	if err != nil {
		return nil, err
	}

	offers = make([]models.PublicOffer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, row.Public())
	}

	if s.cacheEnabled() {
		s.fill(ctx, gen, offers)
	}
	tracing.SetListing(ctx, len(offers), false)

	return offers, nil
}

// Create inserts a validated offer and returns its id.
func (s *Service) Create(ctx context.Context, offer models.NewOffer) (id int64, err error) {
	sess, err := s.store.Session(ctx)
	if err != nil {
		return 0, err
	}
	defer closeSession(sess, &err)

	id, err = sess.InsertOffer(ctx, offer)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx)
	if s.eventsEnabled() {
		s.events.PublishOfferCreated(ctx, id, offer.Title)
	}

	return id, nil
}

// CountView adds one view to the offer. Unknown ids are a no-op.
func (s *Service) CountView(ctx context.Context, id int64) (err error) {
	sess, err := s.store.Session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	n, err := sess.IncrementViews(ctx, id)
	if err != nil {
		return err
	}

	if n > 0 {
		s.invalidate(ctx)
		if s.eventsEnabled() {
			s.events.PublishOfferViewed(ctx, id)
		}
	}

	return nil
}

// Delete soft-deletes the offer. Unknown or already deleted ids are a no-op.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	sess, err := s.store.Session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	n, err := sess.DeactivateOffer(ctx, id)
	if err != nil {
		return err
	}

	if n > 0 {
		s.invalidate(ctx)
		if s.eventsEnabled() {
			s.events.PublishOfferDeleted(ctx, id)
		}
	}

	return nil
}

func (s *Service) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// fill stores the listing unless a mutation committed since gen was read.
func (s *Service) fill(ctx context.Context, gen uint64, offers []models.PublicOffer) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.generation != gen {
		s.log.Debug().Msg("offers listing changed during read, skipping cache fill")
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cache.ActiveOffersKey, offers, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("offers cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.generation++
	if err := s.cache.Delete(ctx, cache.ActiveOffersKey); err != nil {
		s.log.Warn().Err(err).Msg("offers cache invalidation failed")
	}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.features.IsEnabled(features.FeatureCacheEnabled)
}

func (s *Service) eventsEnabled() bool {
	return s.events != nil && s.features.IsEnabled(features.FeatureEventHooksEnabled)
}

// closeSession releases the session, reporting a close failure only when the
// operation itself succeeded.
func closeSession(sess Session, errp *error) {
	if cerr := sess.Close(); cerr != nil && *errp == nil {
		*errp = cerr
	}
}
