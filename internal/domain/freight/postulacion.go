package freight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostulacionStatus string

const (
	PostulacionPendiente PostulacionStatus = "pendiente"
	PostulacionAceptada  PostulacionStatus = "aceptada"
	PostulacionRechazada PostulacionStatus = "rechazada"
	PostulacionPausada   PostulacionStatus = "pausada"
	PostulacionCancelada PostulacionStatus = "cancelada"
)

// Actor is the party allowed to drive a transition.
type Actor string

const (
	ActorOwner     Actor = "owner"
	ActorApplicant Actor = "applicant"
)

type transitionKey struct {
	from PostulacionStatus
	to   PostulacionStatus
}

var postulacionTransitions = map[transitionKey]Actor{
	{PostulacionPendiente, PostulacionAceptada}:  ActorOwner,
	{PostulacionPendiente, PostulacionRechazada}: ActorOwner,
	{PostulacionPendiente, PostulacionPausada}:   ActorOwner,
	{PostulacionPausada, PostulacionPendiente}:   ActorOwner,
	{PostulacionPausada, PostulacionRechazada}:   ActorOwner,
	{PostulacionPendiente, PostulacionCancelada}: ActorApplicant,
	{PostulacionPausada, PostulacionCancelada}:   ActorApplicant,
}

// TransitionActor returns who may move a postulación from one status to
// another. ok is false when the transition does not exist.
func TransitionActor(from, to PostulacionStatus) (Actor, bool) {
	a, ok := postulacionTransitions[transitionKey{from, to}]
	return a, ok
}

type Postulacion struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CargaID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"carga_id"`
	Carga        *Carga            `gorm:"foreignKey:CargaID;references:ID;constraint:OnDelete:CASCADE" json:"carga,omitempty"`
	CamioneroID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"camionero_id"`
	CamionID     *uuid.UUID        `gorm:"type:uuid;column:camion_id" json:"camion_id,omitempty"`
	Message      string            `gorm:"type:text" json:"message,omitempty"`
	ProposedRate *float64          `gorm:"column:proposed_rate" json:"proposed_rate,omitempty"`
	Status       PostulacionStatus `gorm:"column:status;not null;index" json:"status"`
	DecidedAt    *time.Time        `gorm:"column:decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

func (Postulacion) TableName() string { return "postulacion" }

func (p *Postulacion) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PostulacionPendiente
	}
	return nil
}
