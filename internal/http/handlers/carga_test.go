package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	appErrors "github.com/fletar/fletar-backend/internal/pkg/errors"
	"github.com/fletar/fletar-backend/internal/services"
)

type fakeCargas struct {
	services.CargaService

	lastFilter repos.CargaFilter
	lastInput  services.CargaInput
	paused     []uuid.UUID
	bulkBody   string
	bulkResult *services.BulkUploadResult
	err        error
}

func (f *fakeCargas) List(ctx context.Context, filter repos.CargaFilter) (*services.CargaPage, error) {
	f.lastFilter = filter
	return &services.CargaPage{Items: []*types.Carga{}, Limit: filter.Limit}, f.err
}

func (f *fakeCargas) Create(ctx context.Context, in services.CargaInput) (*types.Carga, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &types.Carga{ID: uuid.New(), Title: in.Title, Status: types.CargaDisponible}, nil
}

func (f *fakeCargas) Pause(ctx context.Context, id uuid.UUID) (*types.Carga, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.paused = append(f.paused, id)
	return &types.Carga{ID: id, Status: types.CargaPausada}, nil
}

func (f *fakeCargas) BulkUpload(ctx context.Context, r io.Reader) (*services.BulkUploadResult, error) {
	raw, _ := io.ReadAll(r)
	f.bulkBody = string(raw)
	return f.bulkResult, f.err
}

func newCargaRouter(svc *fakeCargas) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCargaHandler(svc, nil, nil, nil)
	r := gin.New()
	r.GET("/api/cargas", h.List)
	r.POST("/api/cargas", h.Create)
	r.POST("/api/cargas/bulk", h.BulkUpload)
	r.POST("/api/cargas/:id/pause", h.Pause)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" && !strings.Contains(target, "/bulk") {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestCargaListParsesFilters(t *testing.T) {
	svc := &fakeCargas{}
	r := newCargaRouter(svc)

	rec := serve(r, http.MethodGet, "/api/cargas?origin_province=C%C3%B3rdoba&min_rate=1500,5&pickup_from=2026-03-01&status=disponible,pausada&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	f := svc.lastFilter
	if f.OriginProvince != "Córdoba" || f.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if f.MinRate == nil || *f.MinRate != 1500.5 {
		t.Fatalf("comma decimals should parse: %v", f.MinRate)
	}
	if f.PickupFrom == nil || f.PickupFrom.Format("2006-01-02") != "2026-03-01" {
		t.Fatalf("pickup_from: %v", f.PickupFrom)
	}
	if len(f.Statuses) != 2 || f.Statuses[1] != types.CargaPausada {
		t.Fatalf("statuses: %v", f.Statuses)
	}

	for _, q := range []string{"min_rate=mucho", "pickup_to=ayer", "min_rate=NaN", "max_rate=Inf", "min_rate=-inf"} {
		rec := serve(r, http.MethodGet, "/api/cargas?"+q, "")
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_query" {
			t.Fatalf("%s: expected invalid_query, got %d %s", q, rec.Code, rec.Body.String())
		}
	}
}

func TestCargaCreateMapsErrors(t *testing.T) {
	svc := &fakeCargas{}
	r := newCargaRouter(svc)

	rec := serve(r, http.MethodPost, "/api/cargas", `{"title":"Soja a granel","weight_kg":28000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if svc.lastInput.Title != "Soja a granel" || svc.lastInput.WeightKg != 28000 {
		t.Fatalf("input not bound: %+v", svc.lastInput)
	}

	rec = serve(r, http.MethodPost, "/api/cargas", `{"title":`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("malformed json: %d %s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apierr.Forbidden("wrong_user_type"), http.StatusForbidden, "wrong_user_type"},
		{fmt.Errorf("check limit: %w", appErrors.ErrLimitReached), http.StatusForbidden, "limit_reached"},
		{appErrors.ErrModuleDisabled, http.StatusForbidden, "module_disabled"},
		{fmt.Errorf("db exploded"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		svc.err = tc.err
		rec := serve(r, http.MethodPost, "/api/cargas", `{"title":"x"}`)
		if rec.Code != tc.status || errorCode(t, rec) != tc.code {
			t.Fatalf("%v: got %d %s", tc.err, rec.Code, rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), "exploded") {
			t.Fatalf("internal errors must not leak: %s", rec.Body.String())
		}
	}
}

func TestCargaTransitionValidatesID(t *testing.T) {
	svc := &fakeCargas{}
	r := newCargaRouter(svc)

	rec := serve(r, http.MethodPost, "/api/cargas/not-a-uuid/pause", "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_id" {
		t.Fatalf("bad id: %d %s", rec.Code, rec.Body.String())
	}
	id := uuid.New()
	rec = serve(r, http.MethodPost, "/api/cargas/"+id.String()+"/pause", "")
	if rec.Code != http.StatusOK || len(svc.paused) != 1 || svc.paused[0] != id {
		t.Fatalf("pause: %d %v", rec.Code, svc.paused)
	}

	svc.err = appErrors.ErrInvalidTransition
	rec = serve(r, http.MethodPost, "/api/cargas/"+id.String()+"/pause", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition should be 409, got %d", rec.Code)
	}
}

func TestCargaBulkUpload(t *testing.T) {
	svc := &fakeCargas{bulkResult: &services.BulkUploadResult{Created: 2}}
	r := newCargaRouter(svc)
	csv := "title,weight_kg\nSoja,28000\nMaíz,30000\n"

	rec := serve(r, http.MethodPost, "/api/cargas/bulk", csv)
	if rec.Code != http.StatusCreated || svc.bulkBody != csv {
		t.Fatalf("bulk: %d body=%q", rec.Code, svc.bulkBody)
	}

	svc.bulkResult = &services.BulkUploadResult{Errors: []services.RowError{{Row: 2, Field: "weight_kg", Message: "must be positive"}}}
	rec = serve(r, http.MethodPost, "/api/cargas/bulk", csv)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("row errors should be 422, got %d", rec.Code)
	}
	var res services.BulkUploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || len(res.Errors) != 1 || res.Errors[0].Row != 2 {
		t.Fatalf("row errors not returned: %s", rec.Body.String())
	}

	rec = serve(r, http.MethodPost, "/api/cargas/bulk", "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_upload" {
		t.Fatalf("empty upload: %d %s", rec.Code, rec.Body.String())
	}
}
