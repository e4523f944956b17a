// Package matching ranks cargas against camiones disponibles.
package matching

import (
	"math"
	"sort"
	"time"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
)

const (
	DefaultLimit = 50

	// DateTolerance widens availability windows on both ends.
	DateTolerance = 24 * time.Hour

	weightDistance    = 0.5
	weightDate        = 0.2
	weightDestination = 0.2
	weightCapacity    = 0.1
)

// Compat reports whether a truck of type offered can carry a load that
// requires type required.
type Compat func(required, offered string) bool

type Result struct {
	Score      float64 `json:"score"`
	DistanceKm float64 `json:"distance_km"`
}

type CargaMatch struct {
	Carga *types.Carga `json:"carga"`
	Result
}

type CamionMatch struct {
	Camion *types.CamionDisponible `json:"camion"`
	Result
}

// Evaluate applies the hard constraints and scores the pair. ok is false
// when any constraint fails.
func Evaluate(camion *types.CamionDisponible, carga *types.Carga, compat Compat) (Result, bool) {
	if camion == nil || carga == nil {
		return Result{}, false
	}
	if compat != nil && !compat(carga.RequiredTruckType, camion.TruckType) {
		return Result{}, false
	}
	if camion.CapacityKg > 0 && carga.WeightKg > 0 && carga.WeightKg > camion.CapacityKg {
		return Result{}, false
	}
	if !camion.Origin.HasCoordinates() || !carga.Origin.HasCoordinates() || camion.ServiceRadiusKm <= 0 {
		return Result{}, false
	}
	d := geo.DistanceKm(camion.Origin.Point(), carga.Origin.Point())
	if d > camion.ServiceRadiusKm {
		return Result{}, false
	}

	dateFit := 0.5
	if !carga.PickupDate.IsZero() {
		if !camion.AvailableOn(carga.PickupDate, DateTolerance) {
			return Result{}, false
		}
		if camion.AvailableOn(carga.PickupDate, 0) {
			dateFit = 1
		}
	}

	destFit := 0.5
	if camion.PreferredDestProvince != "" {
		destFit = 0
		if camion.PreferredDestProvince == carga.Destination.Province {
			destFit = 1
		}
	}

	capFit := 0.0
	if camion.CapacityKg > 0 && carga.WeightKg > 0 {
		capFit = carga.WeightKg / camion.CapacityKg
	}

	score := weightDistance*(1-d/camion.ServiceRadiusKm) +
		weightDate*dateFit +
		weightDestination*destFit +
		weightCapacity*capFit
	return Result{Score: round4(score), DistanceKm: round4(d)}, true
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func less(a, b Result, aCreated, bCreated time.Time, aID, bID string) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DistanceKm != b.DistanceKm {
		return a.DistanceKm < b.DistanceKm
	}
	if !aCreated.Equal(bCreated) {
		return aCreated.After(bCreated)
	}
	return aID < bID
}

// RankCargas returns the cargas a camión can take, best first.
func RankCargas(camion *types.CamionDisponible, cargas []*types.Carga, compat Compat, limit int) []CargaMatch {
	out := make([]CargaMatch, 0, len(cargas))
	for _, c := range cargas {
		if c.OwnerID == camion.CarrierID {
			continue
		}
		if res, ok := Evaluate(camion, c, compat); ok {
			out = append(out, CargaMatch{Carga: c, Result: res})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Result, out[j].Result, out[i].Carga.CreatedAt, out[j].Carga.CreatedAt, out[i].Carga.ID.String(), out[j].Carga.ID.String())
	})
	return truncate(out, limit)
}

// RankCamiones returns the camiones that can take a carga, best first.
func RankCamiones(carga *types.Carga, camiones []*types.CamionDisponible, compat Compat, limit int) []CamionMatch {
	out := make([]CamionMatch, 0, len(camiones))
	for _, c := range camiones {
		if c.CarrierID == carga.OwnerID {
			continue
		}
		if res, ok := Evaluate(c, carga, compat); ok {
			out = append(out, CamionMatch{Camion: c, Result: res})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Result, out[j].Result, out[i].Camion.CreatedAt, out[j].Camion.CreatedAt, out[i].Camion.ID.String(), out[j].Camion.ID.String())
	})
	return truncate(out, limit)
}

func truncate[T any](in []T, limit int) []T {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(in) > limit {
		return in[:limit]
	}
	return in
}
