package domain

import (
	"github.com/fletar/fletar-backend/internal/domain/admin"
	"github.com/fletar/fletar-backend/internal/domain/auth"
	"github.com/fletar/fletar-backend/internal/domain/freight"
	"github.com/fletar/fletar-backend/internal/domain/notify"
	"github.com/fletar/fletar-backend/internal/domain/user"
)

type User = user.User
type UserType = user.UserType
type Role = user.Role
type PublicProfile = user.PublicProfile
type Contact = user.Contact

const (
	UserTypeDador     = user.UserTypeDador
	UserTypeCamionero = user.UserTypeCamionero
	RoleUser          = user.RoleUser
	RoleAdmin         = user.RoleAdmin
)

type UserToken = auth.UserToken

type Location = freight.Location
type Marker = freight.Marker

type Carga = freight.Carga
type CargaStatus = freight.CargaStatus
type RateMode = freight.RateMode
type Currency = freight.Currency

const (
	CargaDisponible = freight.CargaDisponible
	CargaPausada    = freight.CargaPausada
	CargaAsignada   = freight.CargaAsignada
	CargaCompletada = freight.CargaCompletada
	CargaCancelada  = freight.CargaCancelada

	RatePorViaje    = freight.RatePorViaje
	RatePorTonelada = freight.RatePorTonelada
	RatePorKm       = freight.RatePorKm

	CurrencyARS = freight.CurrencyARS
	CurrencyUSD = freight.CurrencyUSD
)

type CamionDisponible = freight.CamionDisponible
type CamionStatus = freight.CamionStatus

const (
	CamionActivo  = freight.CamionActivo
	CamionPausado = freight.CamionPausado
	CamionVencido = freight.CamionVencido

	MinServiceRadiusKm = freight.MinServiceRadiusKm
	MaxServiceRadiusKm = freight.MaxServiceRadiusKm
)

type Postulacion = freight.Postulacion
type PostulacionStatus = freight.PostulacionStatus
type Actor = freight.Actor

const (
	ActorOwner     = freight.ActorOwner
	ActorApplicant = freight.ActorApplicant
)

// TransitionActor reports who may move a postulación from one status to another.
func TransitionActor(from, to PostulacionStatus) (Actor, bool) {
	return freight.TransitionActor(from, to)
}

const (
	PostulacionPendiente = freight.PostulacionPendiente
	PostulacionAceptada  = freight.PostulacionAceptada
	PostulacionRechazada = freight.PostulacionRechazada
	PostulacionPausada   = freight.PostulacionPausada
	PostulacionCancelada = freight.PostulacionCancelada
)

type Calificacion = freight.Calificacion
type RatingSummary = freight.RatingSummary

const (
	MinScore = freight.MinScore
	MaxScore = freight.MaxScore
)

type Notification = notify.Notification
type NotificationChannel = notify.Channel
type NotificationStatus = notify.Status

const (
	ChannelEmail = notify.ChannelEmail
	ChannelPush  = notify.ChannelPush
	ChannelSMS   = notify.ChannelSMS

	NotificationQueued  = notify.StatusQueued
	NotificationSending = notify.StatusSending
	NotificationSent    = notify.StatusSent
	NotificationFailed  = notify.StatusFailed
	NotificationDead    = notify.StatusDead
)

type Module = admin.Module
type SystemSetting = admin.SystemSetting

const MaskedValue = admin.MaskedValue

const (
	ModuleCargas         = admin.ModuleCargas
	ModuleCamiones       = admin.ModuleCamiones
	ModulePostulaciones  = admin.ModulePostulaciones
	ModuleCalificaciones = admin.ModuleCalificaciones
	ModuleMatching       = admin.ModuleMatching
	ModuleBulkUpload     = admin.ModuleBulkUpload
	ModulePremium        = admin.ModulePremium
	ModuleMapa           = admin.ModuleMapa

	SettingGoogleMapsAPIKey         = admin.SettingGoogleMapsAPIKey
	SettingPremiumPriceMonthlyARS   = admin.SettingPremiumPriceMonthlyARS
	SettingPremiumCurrency          = admin.SettingPremiumCurrency
	SettingFreeMaxActiveCargas      = admin.SettingFreeMaxActiveCargas
	SettingPremiumMaxActiveCargas   = admin.SettingPremiumMaxActiveCargas
	SettingFreeMaxActiveCamiones    = admin.SettingFreeMaxActiveCamiones
	SettingPremiumMaxActiveCamiones = admin.SettingPremiumMaxActiveCamiones
)

// AllModels lists every persisted model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&UserToken{},
		&Carga{},
		&CamionDisponible{},
		&Postulacion{},
		&Calificacion{},
		&Notification{},
		&Module{},
		&SystemSetting{},
	}
}
