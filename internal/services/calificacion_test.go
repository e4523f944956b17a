package services

import (
	"testing"

	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
)

func TestCalificacionRate(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	outsider := env.seedUser(t, types.UserTypeCamionero)
	open := testutil.SeedCarga(t, env.db, dador.ID)
	done := testutil.SeedCarga(t, env.db, dador.ID, func(c *types.Carga) {
		c.Status = types.CargaCompletada
		c.AssignedCarrierID = &carrier.ID
	})

	_, err := env.calificaciones.Rate(asUser(dador), open.ID, RateInput{Score: 5})
	wantCode(t, err, "carga_not_completed")

	_, err = env.calificaciones.Rate(asUser(dador), done.ID, RateInput{Score: 6})
	wantCode(t, err, "invalid_score")

	_, err = env.calificaciones.Rate(asUser(outsider), done.ID, RateInput{Score: 4})
	wantCode(t, err, "not_participant")

	cal, err := env.calificaciones.Rate(asUser(dador), done.ID, RateInput{Score: 5, Comment: "  Puntual  "})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if cal.RatedID != carrier.ID || cal.Comment != "Puntual" {
		t.Fatalf("unexpected calificacion: %+v", cal)
	}
	_, err = env.calificaciones.Rate(asUser(dador), done.ID, RateInput{Score: 3})
	wantCode(t, err, "already_rated")

	if _, err := env.calificaciones.Rate(asUser(carrier), done.ID, RateInput{Score: 4}); err != nil {
		t.Fatalf("carrier rating the dador: %v", err)
	}
	if n := len(env.notifications(t, carrier.ID, EventCalificacionCreated)); n != 2 {
		t.Fatalf("rated carrier should be notified, got %d rows", n)
	}

	page, err := env.calificaciones.ListForUser(asUser(outsider), carrier.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if page.Total != 1 || page.Summary.Count != 1 || page.Summary.Average != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}

	env.disableModule(t, types.ModuleCalificaciones)
	_, err = env.calificaciones.Rate(asUser(outsider), done.ID, RateInput{Score: 4})
	wantCode(t, err, "module_disabled")
}
