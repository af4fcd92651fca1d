package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var knownProfiles = map[string]struct{}{
	"development": {},
	"staging":     {},
	"production":  {},
	"test":        {},
}

var (
	configMetricsOnce sync.Once
	configCounter     metric.Int64Counter
)

// recordConfigValidationEvent counts config loads by profile and outcome.
// The first field that failed validation is attached so a bad deploy shows
// which variable to fix.
func recordConfigValidationEvent(ctx context.Context, profile, outcome string, err error) {
	configMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("propfront").Int64Counter("config.validation.events")
		if cerr == nil {
			configCounter = counter
		}
	})
	if configCounter == nil {
		return
	}
	configCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyConfigLoadError(err)),
		attribute.String("field", failedField(err)),
	))
}

// normalizeConfigProfile folds unknown profiles into "other" so the metric
// label set stays bounded.
func normalizeConfigProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	if _, ok := knownProfiles[v]; ok {
		return v
	}
	return "other"
}

func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return "validation"
	}
	if strings.HasPrefix(err.Error(), "parse config:") {
		return "parse"
	}
	return "load"
}

func failedField(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Namespace()
	}
	return "none"
}
