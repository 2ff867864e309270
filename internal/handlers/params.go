package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/sanitize"
	"rfm-dashboard/internal/services"
)

// runConfigFromQuery overlays k, country, ref_date, since and target query
// parameters on defaults.
func runConfigFromQuery(r *http.Request, defaults services.RunConfig) (services.RunConfig, error) {
	q := r.URL.Query()
	rc := defaults

	if v := q.Get("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return rc, errors.BadRequest(fmt.Sprintf("k must be an integer, got %q", v))
		}
		rc.K = k
	}
	if rc.K < config.MinClusters || rc.K > config.MaxClusters {
		return rc, errors.Validation(fmt.Sprintf("k must be between %d and %d", config.MinClusters, config.MaxClusters))
	}

	if v := strings.TrimSpace(q.Get("country")); v != "" {
		rc.Country = v
	}

	if v := q.Get("ref_date"); v != "" {
		t, err := sanitize.ParseDate(v)
		if err != nil {
			return rc, errors.BadRequestWrap(err, fmt.Sprintf("invalid ref_date %q", v))
		}
		rc.RefDate = t
	}

	if v := q.Get("since"); v != "" {
		t, err := sanitize.ParseDate(v)
		if err != nil {
			return rc, errors.BadRequestWrap(err, fmt.Sprintf("invalid since %q", v))
		}
		rc.Since = &t
	}

	if v := q.Get("target"); v != "" {
		target, err := strconv.ParseFloat(v, 64)
		if err != nil || target < 0 {
			return rc, errors.BadRequest(fmt.Sprintf("target must be a non-negative number, got %q", v))
		}
		rc.RevenueTarget = target
	}

	return rc, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.BadRequest(fmt.Sprintf("%s must be an integer, got %q", name, v))
	}
	return n, nil
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.BadRequest(fmt.Sprintf("%s must be a number, got %q", name, v))
	}
	return f, nil
}

// monthParam accepts "2011-07" as well as any full date.
func monthParam(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, errors.BadRequest(fmt.Sprintf("%s is required", name))
	}
	if t, err := time.Parse("2006-01", v); err == nil {
		return t, nil
	}
	t, err := sanitize.ParseDate(v)
	if err != nil {
		return time.Time{}, errors.BadRequestWrap(err, fmt.Sprintf("invalid %s %q", name, v))
	}
	return t, nil
}
