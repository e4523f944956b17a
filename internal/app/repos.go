package app

import (
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type Repos struct {
	User         repos.UserRepo
	UserToken    repos.UserTokenRepo
	Carga        repos.CargaRepo
	Camion       repos.CamionRepo
	Postulacion  repos.PostulacionRepo
	Calificacion repos.CalificacionRepo
	Notification repos.NotificationRepo
	Module       repos.ModuleRepo
	Setting      repos.SettingRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:         repos.NewUserRepo(db, log),
		UserToken:    repos.NewUserTokenRepo(db, log),
		Carga:        repos.NewCargaRepo(db, log),
		Camion:       repos.NewCamionRepo(db, log),
		Postulacion:  repos.NewPostulacionRepo(db, log),
		Calificacion: repos.NewCalificacionRepo(db, log),
		Notification: repos.NewNotificationRepo(db, log),
		Module:       repos.NewModuleRepo(db, log),
		Setting:      repos.NewSettingRepo(db, log),
	}
}
