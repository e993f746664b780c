package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var knownTransforms = map[string]bool{
	TransformGzip:      true,
	TransformBrotli:    true,
	TransformPadding:   true,
	TransformSSE:       true,
	TransformJSONP:     true,
	TransformTrackSize: true,
}

// newValidator returns a validator with the custom rules used by config tags.
func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	rules := map[string]validator.Func{
		"duration":       validateDuration,
		"log_target":     validateLogTarget,
		"transform_type": validateTransformType,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return v, nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateLogTarget accepts "stdout", "stderr" or an absolute file path.
func validateLogTarget(fl validator.FieldLevel) bool {
	target := fl.Field().String()
	if !IsFilePath(target) {
		return true
	}
	return filepath.IsAbs(target)
}

func validateTransformType(fl validator.FieldLevel) bool {
	return knownTransforms[fl.Field().String()]
}

// Validate validates the configuration using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return c.validateRoutes()
}

// validateRoutes rejects duplicate (pattern, match type) pairs; the router could only honour one.
func (c *Config) validateRoutes() error {
	if c.Routing == nil {
		return nil
	}
	seen := make(map[string]bool, len(c.Routing.Routes))
	for i, r := range c.Routing.Routes {
		key := string(r.MatchType) + " " + r.PathPattern
		if seen[key] {
			return fmt.Errorf("routing.routes[%d]: duplicate %s route for %q", i, r.MatchType, r.PathPattern)
		}
		seen[key] = true
	}
	return nil
}

// validateStruct validates a handler-specific config struct.
func validateStruct(s interface{}) error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "duration":
		return fmt.Sprintf("%s must be a positive duration such as \"30s\"", field)
	case "log_target":
		return fmt.Sprintf("%s must be 'stdout', 'stderr' or an absolute file path", field)
	case "transform_type":
		return fmt.Sprintf("%s must be one of: gzip brotli padding sse jsonp track_size", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
