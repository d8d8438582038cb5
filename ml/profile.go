package ml

import (
	"fmt"
	"strings"
)

// Raw taxi trip fields.
const (
	FieldPickupDatetime   = "pickup_datetime"
	FieldPickupLongitude  = "pickup_longitude"
	FieldPickupLatitude   = "pickup_latitude"
	FieldDropoffLongitude = "dropoff_longitude"
	FieldDropoffLatitude  = "dropoff_latitude"
	FieldPassengerCount   = "passenger_count"
)

// Derived columns.
const (
	ColumnDistanceMiles = "distance_miles"
	ColumnHourOfDay     = "hour_of_day"
	ColumnDayOfWeek     = "day_of_week"
	ColumnMonth         = "month"
)

// Profile describes one deployed model domain: its input fields, whether
// trip features are derived, and the key the prediction is returned under.
type Profile struct {
	Name      string
	Fields    []FieldSpec
	Derive    bool
	OutputKey string
	Title     string
}

// TaxiProfile is the NYC taxi fare model.
var TaxiProfile = Profile{
	Name: "taxi",
	Fields: []FieldSpec{
		{Name: FieldPickupDatetime, Type: FieldTimestamp, Required: true},
		{Name: FieldPickupLongitude, Type: FieldFloat, Required: true},
		{Name: FieldPickupLatitude, Type: FieldFloat, Required: true},
		{Name: FieldDropoffLongitude, Type: FieldFloat, Required: true},
		{Name: FieldDropoffLatitude, Type: FieldFloat, Required: true},
		{Name: FieldPassengerCount, Type: FieldInt, Required: true},
		{Name: ColumnDistanceMiles, Type: FieldFloat},
		{Name: ColumnHourOfDay, Type: FieldInt},
		{Name: ColumnDayOfWeek, Type: FieldInt},
		{Name: ColumnMonth, Type: FieldInt},
	},
	Derive:    true,
	OutputKey: "fare_usd",
	Title:     "NYC Taxi Fare Prediction",
}

// HouseProfile is the house price model. Its fields come from the schema.
var HouseProfile = Profile{
	Name:      "house",
	Derive:    false,
	OutputKey: "price_usd",
	Title:     "House Price Prediction",
}

// ProfileByName resolves a configured domain name.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "taxi":
		return TaxiProfile, nil
	case "house":
		return HouseProfile, nil
	}
	return Profile{}, fmt.Errorf("unknown domain %q", name)
}

// Field returns the declaration for name, if the profile has one.
func (p Profile) Field(name string) (FieldSpec, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FormFields lists the fields a single-row form submission carries. Profiles
// without declared fields take them from the schema, all optional floats.
func (p Profile) FormFields(schema ModelSchema) []FieldSpec {
	if len(p.Fields) > 0 {
		fields := make([]FieldSpec, 0, len(p.Fields))
		for _, f := range p.Fields {
			if f.Required {
				fields = append(fields, f)
			}
		}
		return fields
	}
	fields := make([]FieldSpec, 0, schema.Len())
	for _, name := range schema.Columns() {
		fields = append(fields, FieldSpec{Name: name, Type: FieldFloat})
	}
	return fields
}
