package services

import (
	"context"
	"testing"

	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/realtime"
)

func TestPostulacionApplyAndAccept(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	carga := testutil.SeedCarga(t, env.db, dador.ID)
	camion := testutil.SeedCamion(t, env.db, carrier.ID)

	rate := 430000.0
	p, err := env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{Message: "Salgo mañana", ProposedRate: &rate, CamionID: &camion.ID})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if p.Status != types.PostulacionPendiente {
		t.Fatalf("new postulacion should be pendiente, got %s", p.Status)
	}
	if n := len(env.notifications(t, dador.ID, EventPostulacionCreated)); n != 2 {
		t.Fatalf("owner should be notified on push+email, got %d rows", n)
	}
	if msgs := env.emitter.sentTo(dador.ID); len(msgs) != 1 || msgs[0].Event != realtime.SSEEventPostulacionStatus {
		t.Fatalf("owner should get a live event, got %+v", msgs)
	}

	_, err = env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{})
	wantCode(t, err, "already_applied")

	views, err := env.postulaciones.ListForCarga(asUser(dador), carga.ID, nil)
	if err != nil {
		t.Fatalf("ListForCarga: %v", err)
	}
	if len(views) != 1 || views[0].Applicant == nil || views[0].Reputation == nil {
		t.Fatalf("applicant view not populated: %+v", views)
	}
	_, err = env.postulaciones.ListForCarga(asUser(carrier), carga.ID, nil)
	wantCode(t, err, "not_owner")

	_, err = env.postulaciones.Contact(asUser(dador), p.ID)
	wantCode(t, err, "contact_locked")

	_, err = env.postulaciones.Accept(asUser(carrier), p.ID)
	wantCode(t, err, "wrong_actor")

	accepted, err := env.postulaciones.Accept(asUser(dador), p.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != types.PostulacionAceptada || accepted.DecidedAt == nil {
		t.Fatalf("unexpected accepted postulacion: %+v", accepted)
	}
	stored, err := env.cargaRepo.GetByID(dbctx.New(context.Background()), carga.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.CargaAsignada || stored.AssignedCarrierID == nil || *stored.AssignedCarrierID != carrier.ID {
		t.Fatalf("carga not assigned: %+v", stored)
	}
	if n := len(env.notifications(t, carrier.ID, postulacionEvent(types.PostulacionAceptada))); n != 2 {
		t.Fatalf("carrier should be notified of acceptance, got %d rows", n)
	}
	if msgs := env.emitter.sentTo(carrier.ID); len(msgs) != 1 {
		t.Fatalf("carrier should get one live event, got %d", len(msgs))
	}

	contact, err := env.postulaciones.Contact(asUser(carrier), p.ID)
	if err != nil {
		t.Fatalf("Contact: %v", err)
	}
	if contact.UserID != dador.ID || contact.Email != dador.Email {
		t.Fatalf("carrier should see the dador contact, got %+v", contact)
	}
	outsider := env.seedUser(t, types.UserTypeCamionero)
	_, err = env.postulaciones.Contact(asUser(outsider), p.ID)
	wantCode(t, err, "not_participant")

	_, err = env.postulaciones.Cancel(asUser(carrier), p.ID)
	wantCode(t, err, "invalid_transition")
}

func TestPostulacionSecondAcceptFails(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	first := env.seedUser(t, types.UserTypeCamionero)
	second := env.seedUser(t, types.UserTypeCamionero)
	carga := testutil.SeedCarga(t, env.db, dador.ID)

	p1, err := env.postulaciones.Apply(asUser(first), carga.ID, ApplyInput{})
	if err != nil {
		t.Fatalf("Apply first: %v", err)
	}
	p2, err := env.postulaciones.Apply(asUser(second), carga.ID, ApplyInput{})
	if err != nil {
		t.Fatalf("Apply second: %v", err)
	}
	if _, err := env.postulaciones.Accept(asUser(dador), p1.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	_, err = env.postulaciones.Accept(asUser(dador), p2.ID)
	wantCode(t, err, "carga_not_available")

	late := env.seedUser(t, types.UserTypeCamionero)
	_, err = env.postulaciones.Apply(asUser(late), carga.ID, ApplyInput{})
	wantCode(t, err, "carga_not_available")

	rejected, err := env.postulaciones.Reject(asUser(dador), p2.ID)
	if err != nil || rejected.Status != types.PostulacionRechazada {
		t.Fatalf("Reject: %v %+v", err, rejected)
	}
}

func TestPostulacionApplyRules(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	other := env.seedUser(t, types.UserTypeCamionero)
	carga := testutil.SeedCarga(t, env.db, dador.ID)
	foreignCamion := testutil.SeedCamion(t, env.db, other.ID)

	_, err := env.postulaciones.Apply(asUser(dador), carga.ID, ApplyInput{})
	wantCode(t, err, "wrong_user_type")

	_, err = env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{CamionID: &foreignCamion.ID})
	wantCode(t, err, "invalid_camion")

	bad := -1.0
	_, err = env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{ProposedRate: &bad})
	wantCode(t, err, "invalid_rate")

	paused := testutil.SeedCarga(t, env.db, dador.ID, func(c *types.Carga) { c.Status = types.CargaPausada })
	_, err = env.postulaciones.Apply(asUser(carrier), paused.ID, ApplyInput{})
	wantCode(t, err, "carga_not_available")

	env.disableModule(t, types.ModulePostulaciones)
	_, err = env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{})
	wantCode(t, err, "module_disabled")
}

func TestPostulacionPauseResumeCancel(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	carga := testutil.SeedCarga(t, env.db, dador.ID)

	p, err := env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := env.postulaciones.Pause(asUser(dador), p.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	_, err = env.postulaciones.Accept(asUser(dador), p.ID)
	wantCode(t, err, "invalid_transition")

	if _, err := env.postulaciones.Resume(asUser(dador), p.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := env.postulaciones.Pause(asUser(dador), p.ID); err != nil {
		t.Fatalf("second Pause: %v", err)
	}
	if n := len(env.notifications(t, carrier.ID, postulacionEvent(types.PostulacionPausada))); n != 4 {
		t.Fatalf("each pause should notify separately, got %d rows", n)
	}

	cancelled, err := env.postulaciones.Cancel(asUser(carrier), p.ID)
	if err != nil || cancelled.Status != types.PostulacionCancelada {
		t.Fatalf("Cancel: %v %+v", err, cancelled)
	}

	// a cancelled application does not block a fresh one
	if _, err := env.postulaciones.Apply(asUser(carrier), carga.ID, ApplyInput{}); err != nil {
		t.Fatalf("re-apply after cancel: %v", err)
	}

	page, err := env.postulaciones.ListMine(asUser(carrier), nil, 0, 0)
	if err != nil || page.Total != 2 {
		t.Fatalf("ListMine: %v %+v", err, page)
	}
}
