package services

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/fletar/fletar-backend/internal/data/repos"
	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

func bulkCSV(rows ...string) string {
	return strings.Join(append([]string{strings.Join(BulkHeader, ",")}, rows...), "\n") + "\n"
}

func bulkRow(title, pickup, rate string) string {
	return strings.Join([]string{
		title, "", "granos", "25000", "", "semi",
		"Av. Corrientes 1234", "", "", "", "",
		"", "Rosario", "Santa Fe", "-32.9442", "-60.6505",
		pickup, "", rate, "ARS", "por_viaje", "",
	}, ",")
}

func dateString(days int) string {
	return testutil.Day(days).Format("2006-01-02")
}

func TestParseBulkCSV(t *testing.T) {
	pickup := dateString(3)
	inputs, rowErrs, err := parseBulkCSV(strings.NewReader("\ufeff" + bulkCSV(bulkRow("Soja", pickup, "\"450000,50\""))))
	if err != nil || len(rowErrs) != 0 {
		t.Fatalf("parse: err=%v rowErrs=%+v", err, rowErrs)
	}
	if len(inputs) != 1 || inputs[0].RateAmount != 450000.5 || inputs[0].Destination.Lat != -32.9442 {
		t.Fatalf("unexpected inputs: %+v", inputs)
	}

	_, _, err = parseBulkCSV(strings.NewReader(""))
	wantCode(t, err, "empty_file")

	_, _, err = parseBulkCSV(strings.NewReader(bulkCSV()))
	wantCode(t, err, "empty_file")

	bad := strings.Replace(bulkCSV(bulkRow("Soja", pickup, "1")), "title", "titulo", 1)
	_, _, err = parseBulkCSV(strings.NewReader(bad))
	wantCode(t, err, "invalid_header")

	_, rowErrs, err = parseBulkCSV(strings.NewReader(bulkCSV(
		bulkRow("Soja", pickup, "abc"),
		bulkRow("Maíz", "mañana", "1000"),
		bulkRow("Trigo", "05/01/2031", "1000"),
	)))
	if err != nil {
		t.Fatalf("row errors should not fail the parse: %v", err)
	}
	if len(rowErrs) != 2 || rowErrs[0].Row != 2 || rowErrs[0].Field != "rate_amount" || rowErrs[1].Row != 3 || rowErrs[1].Field != "pickup_date" {
		t.Fatalf("unexpected row errors: %+v", rowErrs)
	}

	rows := make([]string, MaxBulkRows+1)
	for i := range rows {
		rows[i] = bulkRow("Soja", pickup, "1000")
	}
	_, _, err = parseBulkCSV(strings.NewReader(bulkCSV(rows...)))
	wantCode(t, err, "too_many_rows")
}

func TestBulkUploadRequiresPremium(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)

	_, err := env.cargas.BulkUpload(asUser(dador), strings.NewReader(bulkCSV(bulkRow("Soja", dateString(3), "1000"))))
	wantCode(t, err, "premium_required")
}

func TestBulkUploadAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	if _, err := env.premium.Grant(context.Background(), dador.ID, 1); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	ctx := asUser(dador)
	pickup := dateString(3)

	res, err := env.cargas.BulkUpload(ctx, strings.NewReader(bulkCSV(
		bulkRow("Soja", pickup, "1000"),
		bulkRow("", pickup, "1000"),
	)))
	if err != nil {
		t.Fatalf("BulkUpload: %v", err)
	}
	if res.Created != 0 || len(res.Errors) != 1 || res.Errors[0].Row != 3 || res.Errors[0].Field != "invalid_title" {
		t.Fatalf("expected one row error and nothing created, got %+v", res)
	}
	_, total, err := env.cargaRepo.List(dbctx.New(context.Background()), repos.CargaFilter{OwnerID: &dador.ID})
	if err != nil || total != 0 {
		t.Fatalf("nothing should be stored: total=%d err=%v", total, err)
	}

	res, err = env.cargas.BulkUpload(ctx, strings.NewReader(bulkCSV(
		bulkRow("Soja", pickup, "1000"),
		bulkRow("Maíz", pickup, "2000"),
	)))
	if err != nil {
		t.Fatalf("BulkUpload: %v", err)
	}
	if res.Created != 2 || len(res.Cargas) != 2 {
		t.Fatalf("expected two cargas, got %+v", res)
	}
	if res.Cargas[0].Origin.Province != "Ciudad Autónoma de Buenos Aires" {
		t.Fatalf("rows should be geocoded, got %+v", res.Cargas[0].Origin)
	}
	_, total, _ = env.cargaRepo.List(dbctx.New(context.Background()), repos.CargaFilter{OwnerID: &dador.ID})
	if total != 2 {
		t.Fatalf("expected 2 stored cargas, got %d", total)
	}

	env.disableModule(t, types.ModuleBulkUpload)
	_, err = env.cargas.BulkUpload(ctx, strings.NewReader(bulkCSV(bulkRow("Soja", pickup, "1000"))))
	wantCode(t, err, "module_disabled")
}

func TestBulkUploadRejectsNonFiniteNumbers(t *testing.T) {
	for _, raw := range []string{"Inf", "+Inf", "-inf", "NaN", "1e400"} {
		if v, err := parseDecimal(raw); err == nil {
			t.Fatalf("parseDecimal(%q) = %v, want error", raw, v)
		}
	}

	env := newTestEnv(t)
	dador := env.seedUser(t, types.UserTypeDador)
	if _, err := env.premium.Grant(context.Background(), dador.ID, 1); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	pickup := dateString(3)
	res, err := env.cargas.BulkUpload(asUser(dador), strings.NewReader(bulkCSV(
		bulkRow("Soja", pickup, "1000"),
		bulkRow("Maíz", pickup, "Inf"),
		bulkRow("Trigo", pickup, "NaN"),
	)))
	if err != nil {
		t.Fatalf("BulkUpload: %v", err)
	}
	if res.Created != 0 || len(res.Errors) != 2 {
		t.Fatalf("non-finite rates should be row errors, got %+v", res)
	}
	for i, e := range res.Errors {
		if e.Row != i+3 || e.Field != "rate_amount" {
			t.Fatalf("unexpected row error: %+v", e)
		}
	}
	_, total, err := env.cargaRepo.List(dbctx.New(context.Background()), repos.CargaFilter{OwnerID: &dador.ID})
	if err != nil || total != 0 {
		t.Fatalf("nothing should be stored: total=%d err=%v", total, err)
	}

	in := validCargaInput()
	in.WeightKg = math.NaN()
	_, err = env.cargas.Create(asUser(dador), in)
	wantCode(t, err, "invalid_number")

	in = validCargaInput()
	in.RateAmount = math.Inf(1)
	_, err = env.cargas.Create(asUser(dador), in)
	wantCode(t, err, "invalid_number")
}
