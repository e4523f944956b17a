package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.AllModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// Partial unique index: one live application per (carga, camionero).
	// SQLite and Postgres both accept WHERE on CREATE INDEX.
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_postulacion_live
			ON postulacion (carga_id, camionero_id)
			WHERE status <> 'cancelada'`,
		`CREATE INDEX IF NOT EXISTS idx_carga_origin_point
			ON carga (origin_lat, origin_lng)`,
		`CREATE INDEX IF NOT EXISTS idx_camion_origin_point
			ON camion_disponible (origin_lat, origin_lng)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}
