package services

import (
	"testing"

	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
)

func TestMatchingSuggestions(t *testing.T) {
	env := newTestEnv(t)
	svc := NewMatchingService(env.log, env.userRepo, env.cargaRepo, env.camionRepo, env.modules, env.cat)
	dador := env.seedUser(t, types.UserTypeDador)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	other := env.seedUser(t, types.UserTypeCamionero)

	near := testutil.SeedCarga(t, env.db, dador.ID)
	testutil.SeedCarga(t, env.db, dador.ID, func(c *types.Carga) {
		c.Origin = testutil.Mendoza
	})
	testutil.SeedCarga(t, env.db, dador.ID, func(c *types.Carga) {
		c.WeightKg = 40000
	})
	camion := testutil.SeedCamion(t, env.db, carrier.ID)
	testutil.SeedCamion(t, env.db, other.ID, func(c *types.CamionDisponible) {
		c.Origin = testutil.Cordoba
		c.ServiceRadiusKm = 100
	})

	cargas, err := svc.SuggestCargasForCamion(asUser(carrier), camion.ID)
	if err != nil {
		t.Fatalf("SuggestCargasForCamion: %v", err)
	}
	if len(cargas) != 1 || cargas[0].Carga.ID != near.ID {
		t.Fatalf("expected only the nearby carga, got %+v", cargas)
	}
	if cargas[0].Score <= 0 || cargas[0].Score > 1 {
		t.Fatalf("score out of range: %v", cargas[0].Score)
	}

	_, err = svc.SuggestCargasForCamion(asUser(other), camion.ID)
	wantCode(t, err, "not_owner")

	camiones, err := svc.SuggestCamionesForCarga(asUser(dador), near.ID)
	if err != nil {
		t.Fatalf("SuggestCamionesForCarga: %v", err)
	}
	if len(camiones) != 1 || camiones[0].Camion.ID != camion.ID {
		t.Fatalf("expected the Buenos Aires camion only, got %+v", camiones)
	}

	env.disableModule(t, types.ModuleMatching)
	_, err = svc.SuggestCamionesForCarga(asUser(dador), near.ID)
	wantCode(t, err, "module_disabled")
}
