package freight

import "github.com/fletar/fletar-backend/internal/pkg/geo"

type Location struct {
	Address  string  `gorm:"column:address" json:"address"`
	City     string  `gorm:"column:city" json:"city"`
	Province string  `gorm:"column:province;index" json:"province"`
	Lat      float64 `gorm:"column:lat;index" json:"lat"`
	Lng      float64 `gorm:"column:lng;index" json:"lng"`
	PlaceID  string  `gorm:"column:place_id" json:"place_id,omitempty"`
}

func (l Location) Point() geo.Point { return geo.Point{Lat: l.Lat, Lng: l.Lng} }

func (l Location) HasCoordinates() bool { return l.Point().Valid() }

// Query is the free-form string sent to the geocoder.
func (l Location) Query() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{l.Address, l.City, l.Province} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "Argentina")
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
