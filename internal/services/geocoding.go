package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/clients/maps"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	perrors "github.com/fletar/fletar-backend/internal/pkg/errors"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const geocodeCacheTTL = 24 * time.Hour

type GeocoderFactory func(apiKey string) (maps.Geocoder, error)

type GeocodingService interface {
	Available(ctx context.Context) bool
	Geocode(ctx context.Context, query string) (*maps.Result, error)
	// Resolve fills missing coordinates on loc and canonicalizes its province.
	Resolve(ctx context.Context, loc *types.Location) error
}

type geocodeEntry struct {
	result  maps.Result
	expires time.Time
}

type geocodingService struct {
	log      *logger.Logger
	settings SettingsService
	catalog  *catalog.Catalog
	envKey   string
	factory  GeocoderFactory

	mu        sync.Mutex
	client    maps.Geocoder
	clientKey string
	cache     map[string]geocodeEntry
}

func NewGeocodingService(log *logger.Logger, settings SettingsService, cat *catalog.Catalog, envKey string, factory GeocoderFactory) GeocodingService {
	serviceLog := log.With("service", "GeocodingService")
	if factory == nil {
		factory = func(apiKey string) (maps.Geocoder, error) {
			return maps.NewGeocoder(serviceLog, maps.Config{APIKey: apiKey})
		}
	}
	return &geocodingService{
		log:      serviceLog,
		settings: settings,
		catalog:  cat,
		envKey:   strings.TrimSpace(envKey),
		factory:  factory,
		cache:    make(map[string]geocodeEntry),
	}
}

func (s *geocodingService) apiKey(ctx context.Context) string {
	if key := strings.TrimSpace(s.settings.Get(ctx, types.SettingGoogleMapsAPIKey)); key != "" {
		return key
	}
	return s.envKey
}

// geocoder rebuilds the client whenever the configured key changes.
func (s *geocodingService) geocoder(ctx context.Context) (maps.Geocoder, error) {
	key := s.apiKey(ctx)
	if key == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.clientKey == key {
		return s.client, nil
	}
	c, err := s.factory(key)
	if err != nil {
		return nil, err
	}
	s.client = c
	s.clientKey = key
	s.cache = make(map[string]geocodeEntry)
	return c, nil
}

func (s *geocodingService) Available(ctx context.Context) bool {
	return s.apiKey(ctx) != ""
}

func (s *geocodingService) Geocode(ctx context.Context, query string) (*maps.Result, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil, apierr.BadRequest("invalid_address", "address is required")
	}
	g, err := s.geocoder(ctx)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apierr.BadRequest("coordinates_required", "geocoding unavailable; include lat/lng")
	}

	cacheKey := strings.ToLower(query)
	s.mu.Lock()
	if e, ok := s.cache[cacheKey]; ok && timeNow().Before(e.expires) {
		s.mu.Unlock()
		res := e.result
		return &res, nil
	}
	s.mu.Unlock()

	res, err := g.Geocode(ctx, query)
	if errors.Is(err, maps.ErrNoResults) {
		return nil, apierr.New(http.StatusUnprocessableEntity, "address_not_found", perrors.ErrNotFound)
	}
	if err != nil {
		s.log.Warn("Geocoding failed", "error", err)
		return nil, apierr.New(http.StatusBadGateway, "geocoding_failed", err)
	}

	s.mu.Lock()
	s.cache[cacheKey] = geocodeEntry{result: *res, expires: timeNow().Add(geocodeCacheTTL)}
	s.mu.Unlock()
	return res, nil
}

func (s *geocodingService) Resolve(ctx context.Context, loc *types.Location) error {
	loc.Address = trimTo(loc.Address, 255)
	loc.City = trimTo(loc.City, 120)
	if !loc.HasCoordinates() {
		if loc.Lat != 0 || loc.Lng != 0 {
			return apierr.BadRequest("invalid_coordinates", "lat/lng out of range")
		}
		res, err := s.Geocode(ctx, loc.Query())
		if err != nil {
			return err
		}
		loc.Lat, loc.Lng = res.Lat, res.Lng
		if loc.PlaceID == "" {
			loc.PlaceID = res.PlaceID
		}
		if loc.City == "" {
			loc.City = res.City
		}
		if loc.Province == "" {
			loc.Province = res.Province
		}
	}
	prov, ok := s.catalog.Province(loc.Province)
	if !ok {
		return apierr.BadRequest("invalid_province", "unknown province "+loc.Province)
	}
	loc.Province = prov
	return nil
}
