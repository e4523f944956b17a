package freight

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	datadb "github.com/fletar/fletar-backend/internal/data/db"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MarkerLimit  = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// forUpdate locks the selected rows on Postgres. SQLite serializes writers
// on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if datadb.IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// withinBBox filters <prefix>_lat/<prefix>_lng to the box, handling boxes
// that wrap the antimeridian.
func withinBBox(q *gorm.DB, prefix string, b geo.BBox) *gorm.DB {
	lat := prefix + "_lat"
	lng := prefix + "_lng"
	q = q.Where(fmt.Sprintf("%s BETWEEN ? AND ?", lat), b.South, b.North)
	if b.CrossesAntimeridian() {
		return q.Where(fmt.Sprintf("(%s >= ? OR %s <= ?)", lng, lng), b.West, b.East)
	}
	return q.Where(fmt.Sprintf("%s BETWEEN ? AND ?", lng), b.West, b.East)
}

func countBy(q *gorm.DB, model interface{}, column string) (map[string]int64, error) {
	var rows []struct {
		Grp string
		N   int64
	}
	if err := q.Model(model).
		Select(column + " AS grp, COUNT(*) AS n").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Grp] = r.N
	}
	return out, nil
}
