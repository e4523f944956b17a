package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

const MaxBulkRows = 500

// BulkHeader is the exact header a bulk upload must carry.
var BulkHeader = []string{
	"title", "description", "cargo_type", "weight_kg", "volume_m3", "required_truck_type",
	"origin_address", "origin_city", "origin_province", "origin_lat", "origin_lng",
	"destination_address", "destination_city", "destination_province", "destination_lat", "destination_lng",
	"pickup_date", "delivery_date", "rate_amount", "rate_currency", "rate_mode", "payment_terms",
}

type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type BulkUploadResult struct {
	Created int            `json:"created"`
	Cargas  []*types.Carga `json:"cargas,omitempty"`
	Errors  []RowError     `json:"errors,omitempty"`
}

// BulkUpload creates every row of the CSV or none of them. Row errors are
// reported in the result with Created == 0.
func (s *cargaService) BulkUpload(ctx context.Context, r io.Reader) (res *BulkUploadResult, err error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireDador(dbc)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCargaBulkUpload, u.ID)(&err)

	if err := s.modules.Require(ctx, types.ModuleBulkUpload); err != nil {
		return nil, err
	}
	if !u.IsPremium(timeNow()) {
		return nil, apierr.Forbidden("premium_required")
	}

	inputs, rowErrs, err := parseBulkCSV(r)
	if err != nil {
		return nil, err
	}
	res = &BulkUploadResult{}
	now := timeNow()
	for i := range inputs {
		row := i + 2
		if err := validateCarga(s.catalog, &inputs[i], now); err != nil {
			rowErrs = append(rowErrs, rowError(row, err))
			continue
		}
		if err := s.resolveLocations(ctx, &inputs[i]); err != nil {
			rowErrs = append(rowErrs, rowError(row, err))
		}
	}
	if len(rowErrs) > 0 {
		res.Errors = rowErrs
		return res, nil
	}
	if err := s.premium.CheckCargaLimit(dbc, u, len(inputs)); err != nil {
		return nil, err
	}

	cargas := make([]*types.Carga, 0, len(inputs))
	for _, in := range inputs {
		cargas = append(cargas, in.toCarga(u.ID))
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.cargaRepo.Create(dbctx.Context{Ctx: ctx, Tx: tx}, cargas)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bulk create cargas: %w", err)
	}
	s.markers.invalidate(ctx)
	res.Created = len(cargas)
	res.Cargas = cargas
	s.log.Info("Bulk upload stored", "owner_id", u.ID, "rows", len(cargas))
	return res, nil
}

func rowError(row int, err error) RowError {
	if ae, ok := apierr.As(err); ok {
		msg := ae.Code
		if ae.Err != nil {
			msg = ae.Err.Error()
		}
		return RowError{Row: row, Field: ae.Code, Message: msg}
	}
	return RowError{Row: row, Message: err.Error()}
}

func parseBulkCSV(r io.Reader) ([]CargaInput, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(BulkHeader)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, apierr.BadRequest("empty_file", "csv file is empty")
		}
		return nil, nil, apierr.BadRequest("invalid_csv", err.Error())
	}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if strings.ToLower(strings.TrimSpace(h)) != BulkHeader[i] {
			return nil, nil, apierr.BadRequest("invalid_header", "expected header: "+strings.Join(BulkHeader, ","))
		}
	}

	var (
		inputs  []CargaInput
		rowErrs []RowError
	)
	for row := 2; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Message: err.Error()})
			inputs = append(inputs, CargaInput{})
			continue
		}
		if len(inputs) >= MaxBulkRows {
			return nil, nil, apierr.BadRequest("too_many_rows", fmt.Sprintf("at most %d rows per upload", MaxBulkRows))
		}
		in, fieldErr := bulkRecord(rec)
		if fieldErr != nil {
			fieldErr.Row = row
			rowErrs = append(rowErrs, *fieldErr)
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, nil, apierr.BadRequest("empty_file", "csv has no data rows")
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs, nil
	}
	return inputs, nil, nil
}

func bulkRecord(rec []string) (CargaInput, *RowError) {
	col := func(name string) string {
		for i, h := range BulkHeader {
			if h == name {
				return strings.TrimSpace(rec[i])
			}
		}
		return ""
	}
	in := CargaInput{
		Title:             col("title"),
		Description:       col("description"),
		CargoType:         col("cargo_type"),
		RequiredTruckType: col("required_truck_type"),
		Origin: types.Location{
			Address:  col("origin_address"),
			City:     col("origin_city"),
			Province: col("origin_province"),
		},
		Destination: types.Location{
			Address:  col("destination_address"),
			City:     col("destination_city"),
			Province: col("destination_province"),
		},
		RateCurrency: types.Currency(col("rate_currency")),
		RateMode:     types.RateMode(col("rate_mode")),
		PaymentTerms: col("payment_terms"),
	}
	floats := []struct {
		field    string
		dst      *float64
		required bool
	}{
		{"weight_kg", &in.WeightKg, false},
		{"volume_m3", &in.VolumeM3, false},
		{"origin_lat", &in.Origin.Lat, false},
		{"origin_lng", &in.Origin.Lng, false},
		{"destination_lat", &in.Destination.Lat, false},
		{"destination_lng", &in.Destination.Lng, false},
		{"rate_amount", &in.RateAmount, true},
	}
	for _, f := range floats {
		raw := col(f.field)
		if raw == "" {
			if f.required {
				return in, &RowError{Field: f.field, Message: f.field + " is required"}
			}
			continue
		}
		v, err := parseDecimal(raw)
		if err != nil {
			return in, &RowError{Field: f.field, Message: "not a number: " + raw}
		}
		*f.dst = v
	}
	pickup, err := parseBulkDate(col("pickup_date"))
	if err != nil {
		return in, &RowError{Field: "pickup_date", Message: err.Error()}
	}
	in.PickupDate = pickup
	if raw := col("delivery_date"); raw != "" {
		d, err := parseBulkDate(raw)
		if err != nil {
			return in, &RowError{Field: "delivery_date", Message: err.Error()}
		}
		in.DeliveryDate = &d
	}
	return in, nil
}

// parseDecimal accepts "1234.5" and the local "1234,5".
func parseDecimal(raw string) (float64, error) {
	if strings.Contains(raw, ",") && !strings.Contains(raw, ".") {
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if !finite(v) {
		return 0, fmt.Errorf("not a finite number: %s", raw)
	}
	return v, nil
}

func parseBulkDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or DD/MM/YYYY", raw)
}
