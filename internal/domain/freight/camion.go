package freight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CamionStatus string

const (
	CamionActivo  CamionStatus = "activo"
	CamionPausado CamionStatus = "pausado"
	CamionVencido CamionStatus = "vencido"
)

func (s CamionStatus) Valid() bool {
	return s == CamionActivo || s == CamionPausado || s == CamionVencido
}

const (
	MinServiceRadiusKm = 1
	MaxServiceRadiusKm = 2000
)

type CamionDisponible struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CarrierID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"carrier_id"`
	TruckType             string         `gorm:"column:truck_type;not null;index" json:"truck_type"`
	CapacityKg            float64        `gorm:"column:capacity_kg" json:"capacity_kg"`
	Plate                 string         `gorm:"column:plate" json:"plate,omitempty"`
	Origin                Location       `gorm:"embedded;embeddedPrefix:origin_" json:"origin"`
	ServiceRadiusKm       float64        `gorm:"column:service_radius_km;not null" json:"service_radius_km"`
	PreferredDestProvince string         `gorm:"column:preferred_dest_province" json:"preferred_dest_province,omitempty"`
	AvailableFrom         time.Time      `gorm:"column:available_from;not null;index" json:"available_from"`
	AvailableTo           *time.Time     `gorm:"column:available_to;index" json:"available_to,omitempty"`
	Notes                 string         `gorm:"type:text" json:"notes,omitempty"`
	Status                CamionStatus   `gorm:"column:status;not null;index" json:"status"`
	CreatedAt             time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CamionDisponible) TableName() string { return "camion_disponible" }

func (c *CamionDisponible) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CamionActivo
	}
	return nil
}

// AvailableOn reports whether day falls inside the availability window,
// widened by tolerance on both ends.
func (c *CamionDisponible) AvailableOn(day time.Time, tolerance time.Duration) bool {
	if day.Before(c.AvailableFrom.Add(-tolerance)) {
		return false
	}
	if c.AvailableTo != nil && day.After(c.AvailableTo.Add(tolerance)) {
		return false
	}
	return true
}
