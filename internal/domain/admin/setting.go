package admin

import (
	"time"

	"github.com/google/uuid"
)

const (
	SettingGoogleMapsAPIKey         = "google_maps.api_key"
	SettingPremiumPriceMonthlyARS   = "premium.price_monthly_ars"
	SettingPremiumCurrency          = "premium.currency"
	SettingFreeMaxActiveCargas      = "limits.free.max_active_cargas"
	SettingPremiumMaxActiveCargas   = "limits.premium.max_active_cargas"
	SettingFreeMaxActiveCamiones    = "limits.free.max_active_camiones"
	SettingPremiumMaxActiveCamiones = "limits.premium.max_active_camiones"
)

const MaskedValue = "********"

type SystemSetting struct {
	Key         string     `gorm:"column:key;primaryKey" json:"key"`
	Value       string     `gorm:"type:text;not null" json:"value"`
	Secret      bool       `gorm:"not null" json:"secret"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	UpdatedBy   *uuid.UUID `gorm:"type:uuid;column:updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_setting" }

// Masked returns a copy safe to show in listings.
func (s SystemSetting) Masked() SystemSetting {
	if s.Secret && s.Value != "" {
		s.Value = MaskedValue
	}
	return s
}
