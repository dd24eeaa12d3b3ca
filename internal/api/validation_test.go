package api

import (
	"strings"
	"testing"

	"github.com/fieldwatch/fieldwatch/internal/geo"
	"github.com/fieldwatch/fieldwatch/internal/orders"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "drone-1", false},
		{"valid underscore", "gps_tracker_07", false},
		{"empty", "", true},
		{"spaces", "drone 1", true},
		{"slash", "a/b", true},
		{"too long", strings.Repeat("x", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestSensorValidator(t *testing.T) {
	valid := sensors.Spec{
		Name:     "Perimeter Drone",
		Type:     sensors.TypeDrone,
		Location: &geo.Point{Lat: 37.0, Lon: -122.0},
	}
	if errs := NewSensorValidator().Validate(valid); errs.HasErrors() {
		t.Fatalf("Valid spec rejected: %v", errs)
	}

	tests := []struct {
		name  string
		spec  sensors.Spec
		field string
	}{
		{
			"missing name",
			sensors.Spec{Type: sensors.TypeCamera},
			"name",
		},
		{
			"missing type",
			sensors.Spec{Name: "x"},
			"type",
		},
		{
			"bad latitude",
			sensors.Spec{Name: "x", Type: sensors.TypeGPSTracker, Location: &geo.Point{Lat: 91}},
			"location.lat",
		},
		{
			"bad longitude",
			sensors.Spec{Name: "x", Type: sensors.TypeGPSTracker, Location: &geo.Point{Lon: -181}},
			"location.lon",
		},
		{
			"battery out of range",
			sensors.Spec{Name: "x", Type: sensors.TypeDrone, Config: sensors.Config{BatteryLow: 150}},
			"config.battery_low",
		},
		{
			"inverted temperature band",
			sensors.Spec{Name: "x", Type: sensors.TypeEnvironmental, Config: sensors.Config{
				TempMin: floatPtr(40), TempMax: floatPtr(10),
			}},
			"config.temp_min",
		},
		{
			"bad id",
			sensors.Spec{ID: "no spaces", Name: "x", Type: sensors.TypeCamera},
			"id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := NewSensorValidator().Validate(tt.spec)
			if !errs.HasErrors() {
				t.Fatal("Expected validation errors")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected an error on field %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateOrder(t *testing.T) {
	valid := orders.Order{
		Trigger:   "geofence_breach",
		Authority: 4,
		Responses: []orders.ResponseAction{{Responder: "drone-1", Action: "investigate"}},
	}
	if errs := ValidateOrder(valid); errs.HasErrors() {
		t.Fatalf("Valid order rejected: %v", errs)
	}

	missing := ValidateOrder(orders.Order{Authority: 0})
	if len(missing) != 2 {
		t.Errorf("Expected trigger and authority errors, got %v", missing)
	}

	badResp := ValidateOrder(orders.Order{
		Trigger:   "x",
		Authority: 3,
		Responses: []orders.ResponseAction{{}},
	})
	if len(badResp) != 2 {
		t.Errorf("Expected responder and action errors, got %v", badResp)
	}
}

func TestFilterValidOrders(t *testing.T) {
	defs := []orders.Order{
		{ID: "so-good", Trigger: "geofence_breach", Authority: 4},
		{ID: "so-no-trigger", Authority: 3},
		{ID: "so-bad-authority", Trigger: "sos_activated", Authority: 0},
	}

	kept := FilterValidOrders(defs)
	if len(kept) != 1 {
		t.Fatalf("Expected 1 surviving order, got %d", len(kept))
	}
	if kept[0].ID != "so-good" {
		t.Errorf("Wrong order survived: %s", kept[0].ID)
	}

	if got := FilterValidOrders(nil); len(got) != 0 {
		t.Errorf("Expected empty result for nil input, got %d", len(got))
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "one"},
		{Field: "b", Message: "two"},
	}
	if got := errs.Error(); got != "a: one; b: two" {
		t.Errorf("Unexpected error string: %q", got)
	}
}

func floatPtr(v float64) *float64 { return &v }
