package api

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fieldwatch/fieldwatch/internal/orders"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

// ValidationError represents a validation error with field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID validates an externally supplied identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("id must contain only letters, numbers, underscores, and hyphens")
	}
	if len(id) > 64 {
		return fmt.Errorf("id must be at most 64 characters")
	}
	return nil
}

// SensorValidator validates sensor registration requests
type SensorValidator struct {
	errors ValidationErrors
}

// NewSensorValidator creates a new sensor validator
func NewSensorValidator() *SensorValidator {
	return &SensorValidator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates a sensor spec
func (v *SensorValidator) Validate(spec sensors.Spec) ValidationErrors {
	v.errors = make(ValidationErrors, 0)

	v.validateName(spec.Name)
	v.validateType(string(spec.Type))
	v.validateLocation(spec)
	v.validateThresholds(spec.Config)

	if spec.ID != "" {
		if err := ValidateID(spec.ID); err != nil {
			v.errors = append(v.errors, ValidationError{Field: "id", Message: err.Error()})
		}
	}

	return v.errors
}

func (v *SensorValidator) validateName(name string) {
	if name == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   "name",
			Message: "sensor name is required",
		})
		return
	}
	if len(name) > 100 {
		v.errors = append(v.errors, ValidationError{
			Field:   "name",
			Message: "sensor name must be less than 100 characters",
		})
	}
}

func (v *SensorValidator) validateType(t string) {
	if t == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   "type",
			Message: "sensor type is required",
		})
	}
}

func (v *SensorValidator) validateLocation(spec sensors.Spec) {
	if spec.Location == nil {
		return
	}
	if spec.Location.Lat < -90 || spec.Location.Lat > 90 {
		v.errors = append(v.errors, ValidationError{
			Field:   "location.lat",
			Message: "latitude must be between -90 and 90",
		})
	}
	if spec.Location.Lon < -180 || spec.Location.Lon > 180 {
		v.errors = append(v.errors, ValidationError{
			Field:   "location.lon",
			Message: "longitude must be between -180 and 180",
		})
	}
}

func (v *SensorValidator) validateThresholds(cfg sensors.Config) {
	if cfg.BatteryLow < 0 || cfg.BatteryLow > 100 {
		v.errors = append(v.errors, ValidationError{
			Field:   "config.battery_low",
			Message: "battery threshold must be between 0 and 100",
		})
	}
	if cfg.SpeedLimit < 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   "config.speed_limit",
			Message: "speed limit must not be negative",
		})
	}
	if cfg.TempMin != nil && cfg.TempMax != nil && *cfg.TempMin > *cfg.TempMax {
		v.errors = append(v.errors, ValidationError{
			Field:   "config.temp_min",
			Message: "temperature minimum must not exceed the maximum",
		})
	}
}

// ValidateOrder validates a standing order definition.
func ValidateOrder(o orders.Order) ValidationErrors {
	errs := make(ValidationErrors, 0)

	if o.Trigger == "" {
		errs = append(errs, ValidationError{
			Field:   "trigger",
			Message: "trigger is required",
		})
	}
	if o.Authority < 1 || o.Authority > 5 {
		errs = append(errs, ValidationError{
			Field:   "authority",
			Message: "authority must be between 1 and 5",
		})
	}
	for i, resp := range o.Responses {
		if resp.Responder == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("responses[%d].responder", i),
				Message: "responder is required",
			})
		}
		if resp.Action == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("responses[%d].action", i),
				Message: "action is required",
			})
		}
	}
	return errs
}

// FilterValidOrders drops standing orders that fail validation, logging
// each rejection. Configured orders degrade to a smaller set instead of
// loading definitions the matcher could never fire correctly.
func FilterValidOrders(defs []orders.Order) []orders.Order {
	out := make([]orders.Order, 0, len(defs))
	for _, o := range defs {
		if errs := ValidateOrder(o); errs.HasErrors() {
			slog.Warn("Rejecting invalid standing order",
				"order", o.ID,
				"trigger", o.Trigger,
				"errors", errs.Error(),
			)
			continue
		}
		out = append(out, o)
	}
	return out
}
