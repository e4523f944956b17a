package admin

import "time"

// Module keys; each gates a group of routes.
const (
	ModuleCargas         = "cargas"
	ModuleCamiones       = "camiones"
	ModulePostulaciones  = "postulaciones"
	ModuleCalificaciones = "calificaciones"
	ModuleMatching       = "matching"
	ModuleBulkUpload     = "bulk_upload"
	ModulePremium        = "premium"
	ModuleMapa           = "mapa"
)

type Module struct {
	Key         string    `gorm:"column:key;primaryKey" json:"key"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Enabled     bool      `gorm:"not null" json:"enabled"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Module) TableName() string { return "module" }
