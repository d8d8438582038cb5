package ml

import (
	"math"
	"time"
)

// EarthRadiusMiles is the sphere radius used for trip distances.
const EarthRadiusMiles = 3959.87433

// Haversine returns the great-circle distance in miles between two points
// given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(a))
}

// Calendar holds the time components the fare model uses.
type Calendar struct {
	HourOfDay int
	DayOfWeek int // Monday = 0
	Month     int
}

// CalendarOf splits t in its own location; no zone conversion is applied.
func CalendarOf(t time.Time) Calendar {
	return Calendar{
		HourOfDay: t.Hour(),
		DayOfWeek: (int(t.Weekday()) + 6) % 7,
		Month:     int(t.Month()),
	}
}

// TripFeatures are the values derived for one trip row.
type TripFeatures struct {
	DistanceMiles float64
	Calendar
}

// DerivationFields are the raw columns trip derivation cannot do without.
var DerivationFields = []string{
	FieldPickupDatetime,
	FieldPickupLongitude,
	FieldPickupLatitude,
	FieldDropoffLongitude,
	FieldDropoffLatitude,
}

// RequireDerivationColumns checks a known header for DerivationFields, so a
// table missing one fails even when it has no rows.
func RequireDerivationColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	for _, f := range DerivationFields {
		if !have[f] {
			return &InvalidInputError{Field: f, Reason: "column is missing"}
		}
	}
	return nil
}

// DeriveTrip computes the engineered features for one raw row. row is the
// 1-based index used in error messages; pass 0 for single-row input.
func DeriveTrip(rec RawRecord, row int) (TripFeatures, error) {
	coords := [4]string{FieldPickupLatitude, FieldPickupLongitude, FieldDropoffLatitude, FieldDropoffLongitude}
	var vals [4]float64
	for i, field := range coords {
		v, ok := rec[field]
		if !ok {
			return TripFeatures{}, &InvalidInputError{Field: field, Row: row, Reason: "field is required"}
		}
		f, ok := v.Number()
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return TripFeatures{}, &InvalidInputError{Field: field, Row: row, Reason: "not a number: " + v.Raw()}
		}
		vals[i] = f
	}

	ts, ok := rec[FieldPickupDatetime]
	if !ok {
		return TripFeatures{}, &InvalidInputError{Field: FieldPickupDatetime, Row: row, Reason: "field is required"}
	}
	var when time.Time
	switch ts.Kind {
	case KindTimestamp:
		when = ts.Time
	case KindString:
		t, err := ParseTimestamp(ts.Str)
		if err != nil {
			return TripFeatures{}, &InvalidInputError{Field: FieldPickupDatetime, Row: row, Reason: err.Error()}
		}
		when = t
	default:
		return TripFeatures{}, &InvalidInputError{Field: FieldPickupDatetime, Row: row, Reason: "not a timestamp: " + ts.Raw()}
	}

	return TripFeatures{
		DistanceMiles: Haversine(vals[0], vals[1], vals[2], vals[3]),
		Calendar:      CalendarOf(when),
	}, nil
}

// DeriveFeatures returns a copy of table with distance_miles, hour_of_day,
// day_of_week and month added to every row. Any row lacking a usable
// coordinate or pickup time fails the whole table.
func DeriveFeatures(table *FeatureTable) (*FeatureTable, error) {
	out := &FeatureTable{
		Columns: append([]string(nil), table.Columns...),
		Rows:    make([]RawRecord, len(table.Rows)),
	}
	for _, name := range []string{ColumnDistanceMiles, ColumnHourOfDay, ColumnDayOfWeek, ColumnMonth} {
		out.addColumn(name)
	}

	for i, rec := range table.Rows {
		row := 0
		if len(table.Rows) > 1 {
			row = i + 1
		}
		trip, err := DeriveTrip(rec, row)
		if err != nil {
			return nil, err
		}
		derived := make(RawRecord, len(rec)+4)
		for k, v := range rec {
			derived[k] = v
		}
		derived[ColumnDistanceMiles] = NumberValue(trip.DistanceMiles)
		derived[ColumnHourOfDay] = NumberValue(float64(trip.HourOfDay))
		derived[ColumnDayOfWeek] = NumberValue(float64(trip.DayOfWeek))
		derived[ColumnMonth] = NumberValue(float64(trip.Month))
		out.Rows[i] = derived
	}
	return out, nil
}
