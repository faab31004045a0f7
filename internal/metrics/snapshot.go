package metrics

import (
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// Snapshot is a JSON-friendly summary of the registry used by /health
type Snapshot struct {
	ReportsReal   float64            `json:"reports_real"`
	ReportsMock   float64            `json:"reports_mock"`
	Fallbacks     map[string]float64 `json:"fallbacks"`
	SourceErrors  float64            `json:"source_errors"`
	CacheHitRatio float64            `json:"cache_hit_ratio"`
	Breakers      map[string]string  `json:"breakers"`
}

var breakerStateNames = map[float64]string{0: "closed", 1: "half-open", 2: "open"}

// Snapshot gathers the current metric families into a Snapshot
func (m *Registry) Snapshot() (Snapshot, error) {
	snap := Snapshot{
		Fallbacks: make(map[string]float64),
		Breakers:  make(map[string]string),
	}
	if m == nil {
		return snap, nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return snap, err
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := labelMap(metric)
			switch family.GetName() {
			case "nicheradar_reports_total":
				switch labels["path"] {
				case "real":
					snap.ReportsReal += metric.GetCounter().GetValue()
				case "mock":
					snap.ReportsMock += metric.GetCounter().GetValue()
				}
			case "nicheradar_fallbacks_total":
				snap.Fallbacks[labels["reason"]] += metric.GetCounter().GetValue()
			case "nicheradar_source_calls_total":
				if labels["outcome"] != "ok" {
					snap.SourceErrors += metric.GetCounter().GetValue()
				}
			case "nicheradar_cache_hit_ratio":
				snap.CacheHitRatio = metric.GetGauge().GetValue()
			case "nicheradar_breaker_state":
				snap.Breakers[labels["breaker"]] = breakerStateNames[metric.GetGauge().GetValue()]
			}
		}
	}
	return snap, nil
}

func labelMap(metric *io_prometheus_client.Metric) map[string]string {
	out := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		out[pair.GetName()] = pair.GetValue()
	}
	return out
}
