package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
)

var (
	BuenosAires = types.Location{City: "Buenos Aires", Province: "Buenos Aires", Lat: -34.6037, Lng: -58.3816}
	Rosario     = types.Location{City: "Rosario", Province: "Santa Fe", Lat: -32.9442, Lng: -60.6505}
	Cordoba     = types.Location{City: "Córdoba", Province: "Córdoba", Lat: -31.4201, Lng: -64.1888}
	Mendoza     = types.Location{City: "Mendoza", Province: "Mendoza", Lat: -32.8895, Lng: -68.8458}
)

// Day returns midnight UTC, offset by n days from today.
func Day(n int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func SeedUser(tb testing.TB, db *gorm.DB, userType types.UserType) *types.User {
	tb.Helper()
	u := &types.User{
		ID:          uuid.New(),
		Email:       uuid.NewString()[:8] + "@fletar.test",
		Password:    "pw",
		FirstName:   "Juan",
		LastName:    "Pérez",
		Phone:       "+5491155550000",
		UserType:    userType,
		Role:        types.RoleUser,
		NotifyEmail: true,
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedCarga(tb testing.TB, db *gorm.DB, ownerID uuid.UUID, mutate ...func(*types.Carga)) *types.Carga {
	tb.Helper()
	c := &types.Carga{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Title:             "Soja a granel",
		CargoType:         "granos",
		WeightKg:          20000,
		RequiredTruckType: "semi",
		Origin:            BuenosAires,
		Destination:       Rosario,
		PickupDate:        Day(2),
		RateAmount:        450000,
		RateCurrency:      types.CurrencyARS,
		RateMode:          types.RatePorViaje,
		Status:            types.CargaDisponible,
	}
	for _, m := range mutate {
		m(c)
	}
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed carga: %v", err)
	}
	return c
}

func SeedCamion(tb testing.TB, db *gorm.DB, carrierID uuid.UUID, mutate ...func(*types.CamionDisponible)) *types.CamionDisponible {
	tb.Helper()
	to := Day(10)
	c := &types.CamionDisponible{
		ID:              uuid.New(),
		CarrierID:       carrierID,
		TruckType:       "semi",
		CapacityKg:      28000,
		Origin:          BuenosAires,
		ServiceRadiusKm: 300,
		AvailableFrom:   Day(0),
		AvailableTo:     &to,
		Status:          types.CamionActivo,
	}
	for _, m := range mutate {
		m(c)
	}
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed camion: %v", err)
	}
	return c
}
