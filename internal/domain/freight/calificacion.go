package freight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinScore = 1
	MaxScore = 5
)

type Calificacion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CargaID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_calificacion_carga_rater" json:"carga_id"`
	RaterID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_calificacion_carga_rater" json:"rater_id"`
	RatedID   uuid.UUID `gorm:"type:uuid;not null;index" json:"rated_id"`
	Score     int       `gorm:"not null" json:"score"`
	Comment   string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Calificacion) TableName() string { return "calificacion" }

func (c *Calificacion) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type RatingSummary struct {
	UserID  uuid.UUID `json:"user_id"`
	Average float64   `json:"average"`
	Count   int64     `json:"count"`
}
