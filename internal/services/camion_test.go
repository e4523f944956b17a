package services

import (
	"context"
	"testing"

	"github.com/fletar/fletar-backend/internal/data/repos"
	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
	"github.com/fletar/fletar-backend/internal/realtime"
)

func validCamionInput() CamionInput {
	to := testutil.Day(7)
	return CamionInput{
		TruckType:       "Semi",
		CapacityKg:      28000,
		Plate:           "ab123cd",
		Origin:          types.Location{Address: "Bv. Oroño 100"},
		ServiceRadiusKm: 400,
		AvailableTo:     &to,
	}
}

func TestCamionCreate(t *testing.T) {
	env := newTestEnv(t)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	dador := env.seedUser(t, types.UserTypeDador)

	c, err := env.camiones.Create(asUser(carrier), validCamionInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.TruckType != "semi" || c.Plate != "AB123CD" || c.Status != types.CamionActivo {
		t.Fatalf("camion not normalized: %+v", c)
	}
	if c.Origin.Province != "Santa Fe" || c.Origin.City != "Rosario" {
		t.Fatalf("origin not geocoded: %+v", c.Origin)
	}
	if !c.AvailableFrom.Equal(testutil.Day(0)) {
		t.Fatalf("available_from should default to today, got %v", c.AvailableFrom)
	}

	_, err = env.camiones.Create(asUser(dador), validCamionInput())
	wantCode(t, err, "wrong_user_type")

	cases := []struct {
		name   string
		mutate func(*CamionInput)
		code   string
	}{
		{"radius too large", func(in *CamionInput) { in.ServiceRadiusKm = 5000 }, "invalid_radius"},
		{"radius zero", func(in *CamionInput) { in.ServiceRadiusKm = 0 }, "invalid_radius"},
		{"unknown truck", func(in *CamionInput) { in.TruckType = "zeppelin" }, "invalid_truck_type"},
		{"negative capacity", func(in *CamionInput) { in.CapacityKg = -1 }, "invalid_capacity"},
		{"window reversed", func(in *CamionInput) { from := testutil.Day(9); in.AvailableFrom = from }, "invalid_window"},
		{"bad preferred province", func(in *CamionInput) { in.PreferredDestProvince = "Atlantis" }, "invalid_province"},
	}
	for _, tc := range cases {
		in := validCamionInput()
		tc.mutate(&in)
		_, err := env.camiones.Create(asUser(carrier), in)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		wantCode(t, err, tc.code)
	}
}

func TestCamionLimit(t *testing.T) {
	env := newTestEnv(t)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	ctx := asUser(carrier)

	for i := 0; i < 2; i++ {
		if _, err := env.camiones.Create(ctx, validCamionInput()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := env.camiones.Create(ctx, validCamionInput())
	wantCode(t, err, "limit_reached")
}

func TestCamionContact(t *testing.T) {
	env := newTestEnv(t)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	dador := env.seedUser(t, types.UserTypeDador)
	camion := testutil.SeedCamion(t, env.db, carrier.ID)

	_, err := env.camiones.Contact(asUser(carrier), camion.ID)
	wantCode(t, err, "wrong_user_type")

	for i := 0; i < 2; i++ {
		contact, err := env.camiones.Contact(asUser(dador), camion.ID)
		if err != nil {
			t.Fatalf("Contact: %v", err)
		}
		if contact.UserID != carrier.ID || contact.Phone != carrier.Phone {
			t.Fatalf("unexpected contact: %+v", contact)
		}
	}
	if n := len(env.notifications(t, carrier.ID, EventCamionContacto)); n != 2 {
		t.Fatalf("repeated contact should notify once per channel, got %d rows", n)
	}
	msgs := env.emitter.sentTo(carrier.ID)
	if len(msgs) != 2 || msgs[0].Event != realtime.SSEEventContactRequested {
		t.Fatalf("expected live contact events, got %+v", msgs)
	}

	if _, err := env.camiones.Pause(asUser(carrier), camion.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	_, err = env.camiones.Contact(asUser(dador), camion.ID)
	wantCode(t, err, "camion_not_available")
}

func TestCamionExpireAndReactivate(t *testing.T) {
	env := newTestEnv(t)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	yesterday := testutil.Day(-1)
	stale := testutil.SeedCamion(t, env.db, carrier.ID, func(c *types.CamionDisponible) {
		c.AvailableFrom = testutil.Day(-5)
		c.AvailableTo = &yesterday
	})
	fresh := testutil.SeedCamion(t, env.db, carrier.ID)

	n, err := env.camiones.ExpireStale(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale: n=%d err=%v", n, err)
	}
	dbc := dbctx.New(context.Background())
	got, _ := env.camionRepo.GetByID(dbc, stale.ID)
	if got.Status != types.CamionVencido {
		t.Fatalf("stale camion should be vencido, got %s", got.Status)
	}
	got, _ = env.camionRepo.GetByID(dbc, fresh.ID)
	if got.Status != types.CamionActivo {
		t.Fatalf("fresh camion should stay activo, got %s", got.Status)
	}

	page, err := env.camiones.List(asUser(carrier), repos.CamionFilter{})
	if err != nil || page.Total != 1 {
		t.Fatalf("List should only show activo: %v %+v", err, page)
	}

	_, err = env.camiones.Resume(asUser(carrier), stale.ID)
	wantCode(t, err, "invalid_transition")

	to := testutil.Day(5)
	updated, err := env.camiones.Update(asUser(carrier), stale.ID, CamionPatch{AvailableTo: &to})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != types.CamionActivo {
		t.Fatalf("extending the window should reactivate, got %s", updated.Status)
	}
}

func TestCamionMarkersCacheKeysOnAvailability(t *testing.T) {
	env := newTestEnv(t)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	dador := env.seedUser(t, types.UserTypeDador)
	ctx := asUser(dador)
	box := geo.Around(testutil.BuenosAires.Point(), 20)
	testutil.SeedCamion(t, env.db, carrier.ID)
	later := testutil.SeedCamion(t, env.db, carrier.ID, func(c *types.CamionDisponible) {
		c.AvailableFrom = testutil.Day(5)
	})

	all, err := env.camiones.Markers(ctx, box, repos.CamionFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("unfiltered markers: n=%d err=%v", len(all), err)
	}
	day := testutil.Day(1)
	onDay, err := env.camiones.Markers(ctx, box, repos.CamionFilter{AvailableOn: &day})
	if err != nil || len(onDay) != 1 {
		t.Fatalf("available_on markers: n=%d err=%v", len(onDay), err)
	}
	if onDay[0].ID == later.ID {
		t.Fatalf("camion available from day 5 should not show on day 1")
	}

	if _, err := env.camiones.Pause(asUser(carrier), later.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	all, err = env.camiones.Markers(ctx, box, repos.CamionFilter{})
	if err != nil || len(all) != 1 {
		t.Fatalf("paused camion should leave the cached markers: n=%d err=%v", len(all), err)
	}
}
