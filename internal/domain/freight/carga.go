package freight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CargaStatus string

const (
	CargaDisponible CargaStatus = "disponible"
	CargaPausada    CargaStatus = "pausada"
	CargaAsignada   CargaStatus = "asignada"
	CargaCompletada CargaStatus = "completada"
	CargaCancelada  CargaStatus = "cancelada"
)

func (s CargaStatus) Valid() bool {
	switch s {
	case CargaDisponible, CargaPausada, CargaAsignada, CargaCompletada, CargaCancelada:
		return true
	}
	return false
}

// Active statuses count against a dador's publishing limit.
func (s CargaStatus) Active() bool {
	return s == CargaDisponible || s == CargaPausada
}

var cargaTransitions = map[CargaStatus][]CargaStatus{
	CargaDisponible: {CargaPausada, CargaCancelada, CargaAsignada},
	CargaPausada:    {CargaDisponible, CargaCancelada},
	CargaAsignada:   {CargaCompletada, CargaCancelada},
}

func (s CargaStatus) CanTransitionTo(next CargaStatus) bool {
	for _, allowed := range cargaTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type RateMode string

const (
	RatePorViaje    RateMode = "por_viaje"
	RatePorTonelada RateMode = "por_tonelada"
	RatePorKm       RateMode = "por_km"
)

type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

type Carga struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title             string         `gorm:"not null" json:"title"`
	Description       string         `gorm:"type:text" json:"description,omitempty"`
	CargoType         string         `gorm:"column:cargo_type" json:"cargo_type,omitempty"`
	WeightKg          float64        `gorm:"column:weight_kg" json:"weight_kg"`
	VolumeM3          float64        `gorm:"column:volume_m3" json:"volume_m3,omitempty"`
	RequiredTruckType string         `gorm:"column:required_truck_type;index" json:"required_truck_type,omitempty"`
	Origin            Location       `gorm:"embedded;embeddedPrefix:origin_" json:"origin"`
	Destination       Location       `gorm:"embedded;embeddedPrefix:destination_" json:"destination"`
	PickupDate        time.Time      `gorm:"column:pickup_date;not null;index" json:"pickup_date"`
	DeliveryDate      *time.Time     `gorm:"column:delivery_date" json:"delivery_date,omitempty"`
	RateAmount        float64        `gorm:"column:rate_amount;not null;index" json:"rate_amount"`
	RateCurrency      Currency       `gorm:"column:rate_currency;not null" json:"rate_currency"`
	RateMode          RateMode       `gorm:"column:rate_mode;not null" json:"rate_mode"`
	PaymentTerms      string         `gorm:"column:payment_terms" json:"payment_terms,omitempty"`
	Status            CargaStatus    `gorm:"column:status;not null;index" json:"status"`
	AssignedCarrierID *uuid.UUID     `gorm:"type:uuid;column:assigned_carrier_id;index" json:"assigned_carrier_id,omitempty"`
	AssignedAt        *time.Time     `gorm:"column:assigned_at" json:"assigned_at,omitempty"`
	CompletedAt       *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Carga) TableName() string { return "carga" }

func (c *Carga) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CargaDisponible
	}
	return nil
}

// Marker is the trimmed shape used for map rendering.
type Marker struct {
	ID        uuid.UUID `json:"id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Title     string    `json:"title"`
	Rate      float64   `json:"rate,omitempty"`
	Currency  Currency  `json:"currency,omitempty"`
	TruckType string    `json:"truck_type,omitempty"`
}
