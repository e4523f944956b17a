package user

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	email := uuid.NewString()[:8] + "@transportes.test"
	created, err := repo.Create(dbc, []*types.User{{
		Email:       email,
		Password:    "pw",
		FirstName:   "Ana",
		LastName:    "García",
		CompanyName: "Transportes del Sur",
		UserType:    types.UserTypeCamionero,
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created[0].ID == uuid.Nil || created[0].Role != types.RoleUser {
		t.Fatalf("BeforeCreate defaults not applied: %+v", created[0])
	}

	got, err := repo.GetByEmail(dbc, "  "+email+" ")
	if err != nil || got == nil || got.ID != created[0].ID {
		t.Fatalf("GetByEmail: got=%v err=%v", got, err)
	}
	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID missing: got=%v err=%v", missing, err)
	}

	exists, err := repo.EmailExists(dbc, email)
	if err != nil || !exists {
		t.Fatalf("EmailExists: %v %v", exists, err)
	}

	if err := repo.UpdateFields(dbc, created[0].ID, map[string]interface{}{"blocked": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	blocked := true
	list, total, err := repo.List(dbc, ListFilter{Blocked: &blocked, Query: "del sur"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(list) != 1 || !list[0].Blocked {
		t.Fatalf("List: total=%d list=%+v", total, list)
	}

	testutil.SeedUser(t, db, types.UserTypeDador)
	counts, err := repo.CountByType(dbc)
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if counts[string(types.UserTypeDador)] < 1 || counts[string(types.UserTypeCamionero)] < 1 {
		t.Fatalf("CountByType: %v", counts)
	}
}
