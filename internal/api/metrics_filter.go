package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// steamPrefix marks the per-game achievement series. They are high
// cardinality, so they get their own endpoint.
const steamPrefix = "steam_"

// PrefixGatherer keeps (or, with exclude set, drops) metric families whose
// name starts with one of prefixes.
type PrefixGatherer struct {
	gatherer prometheus.Gatherer
	prefixes []string
	exclude  bool
}

func OnlyPrefixes(g prometheus.Gatherer, prefixes ...string) *PrefixGatherer {
	return &PrefixGatherer{gatherer: g, prefixes: prefixes}
}

func WithoutPrefixes(g prometheus.Gatherer, prefixes ...string) *PrefixGatherer {
	return &PrefixGatherer{gatherer: g, prefixes: prefixes, exclude: true}
}

func (pg *PrefixGatherer) Gather() ([]*dto.MetricFamily, error) {
	all, err := pg.gatherer.Gather()
	if err != nil {
		return nil, err
	}

	kept := make([]*dto.MetricFamily, 0, len(all))
	for _, mf := range all {
		if mf.Name == nil {
			continue
		}
		if pg.matches(mf.GetName()) != pg.exclude {
			kept = append(kept, mf)
		}
	}
	return kept, nil
}

func (pg *PrefixGatherer) matches(name string) bool {
	for _, prefix := range pg.prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// SystemMetricsHandler serves runtime and service metrics without the steam_* series.
func SystemMetricsHandler() http.Handler {
	return promhttp.HandlerFor(WithoutPrefixes(prometheus.DefaultGatherer, steamPrefix), promhttp.HandlerOpts{})
}

// SteamHandler returns a handler that only serves Steam metrics
func SteamHandler() http.Handler {
	return promhttp.HandlerFor(OnlyPrefixes(prometheus.DefaultGatherer, steamPrefix), promhttp.HandlerOpts{})
}
