package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gmaps "googlemaps.github.io/maps"

	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

var ErrNoResults = errors.New("geocode: no results")

type Result struct {
	FormattedAddress string
	City             string
	Province         string
	Lat              float64
	Lng              float64
	PlaceID          string
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

type Config struct {
	APIKey   string
	BaseURL  string
	Region   string
	Language string
}

type geocoder struct {
	log    *logger.Logger
	client *gmaps.Client
	cfg    Config
}

func NewGeocoder(log *logger.Logger, cfg Config) (Geocoder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing google maps api key")
	}
	if cfg.Region == "" {
		cfg.Region = "ar"
	}
	if cfg.Language == "" {
		cfg.Language = "es"
	}
	opts := []gmaps.ClientOption{gmaps.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, gmaps.WithBaseURL(cfg.BaseURL))
	}
	c, err := gmaps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &geocoder{log: log.With("client", "GoogleGeocoder"), client: c, cfg: cfg}, nil
}

func (g *geocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("geocode: empty query")
	}
	res, err := g.client.Geocode(ctx, &gmaps.GeocodingRequest{
		Address:    query,
		Region:     g.cfg.Region,
		Language:   g.cfg.Language,
		Components: map[gmaps.Component]string{gmaps.ComponentCountry: strings.ToUpper(g.cfg.Region)},
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, ErrNoResults
		}
		return nil, fmt.Errorf("geocode: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNoResults
	}
	return fromResult(res[0]), nil
}

func fromResult(r gmaps.GeocodingResult) *Result {
	out := &Result{
		FormattedAddress: r.FormattedAddress,
		Lat:              r.Geometry.Location.Lat,
		Lng:              r.Geometry.Location.Lng,
		PlaceID:          r.PlaceID,
	}
	var adminLevel2 string
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "administrative_area_level_1":
				out.Province = c.LongName
			case "locality":
				out.City = c.LongName
			case "administrative_area_level_2":
				adminLevel2 = c.LongName
			}
		}
	}
	if out.City == "" {
		out.City = adminLevel2
	}
	return out
}
