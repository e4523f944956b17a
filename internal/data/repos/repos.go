package repos

import (
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos/admin"
	"github.com/fletar/fletar-backend/internal/data/repos/auth"
	"github.com/fletar/fletar-backend/internal/data/repos/freight"
	"github.com/fletar/fletar-backend/internal/data/repos/notify"
	"github.com/fletar/fletar-backend/internal/data/repos/user"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type UserRepo = user.UserRepo
type UserListFilter = user.ListFilter
type UserTokenRepo = auth.UserTokenRepo

type CargaRepo = freight.CargaRepo
type CargaFilter = freight.CargaFilter
type CamionRepo = freight.CamionRepo
type CamionFilter = freight.CamionFilter
type PostulacionRepo = freight.PostulacionRepo
type CalificacionRepo = freight.CalificacionRepo

type NotificationRepo = notify.NotificationRepo

type ModuleRepo = admin.ModuleRepo
type SettingRepo = admin.SettingRepo

const (
	SortRecent = freight.SortRecent
	SortRate   = freight.SortRate
	SortPickup = freight.SortPickup
)

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo { return user.NewUserRepo(db, log) }
func NewUserTokenRepo(db *gorm.DB, log *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, log)
}

func NewCargaRepo(db *gorm.DB, log *logger.Logger) CargaRepo   { return freight.NewCargaRepo(db, log) }
func NewCamionRepo(db *gorm.DB, log *logger.Logger) CamionRepo { return freight.NewCamionRepo(db, log) }
func NewPostulacionRepo(db *gorm.DB, log *logger.Logger) PostulacionRepo {
	return freight.NewPostulacionRepo(db, log)
}
func NewCalificacionRepo(db *gorm.DB, log *logger.Logger) CalificacionRepo {
	return freight.NewCalificacionRepo(db, log)
}

func NewNotificationRepo(db *gorm.DB, log *logger.Logger) NotificationRepo {
	return notify.NewNotificationRepo(db, log)
}

func NewModuleRepo(db *gorm.DB, log *logger.Logger) ModuleRepo { return admin.NewModuleRepo(db, log) }
func NewSettingRepo(db *gorm.DB, log *logger.Logger) SettingRepo {
	return admin.NewSettingRepo(db, log)
}
