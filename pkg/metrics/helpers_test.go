package metrics

import (
	"fmt"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

// sample returns the counter value, gauge value or histogram sum of the
// series in family name whose labels include want.
func sample(t *testing.T, mfs []*dto.MetricFamily, name string, want map[string]string) float64 {
	t.Helper()
	v, err := lookup(mfs, name, want)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	return lookup(mfs, name, map[string]string{label: value})
}

func lookup(mfs []*dto.MetricFamily, name string, want map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue(), nil
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue(), nil
			case dto.MetricType_HISTOGRAM:
				return m.GetHistogram().GetSampleSum(), nil
			}
			return 0, fmt.Errorf("%s: unsupported type %s", name, mf.GetType())
		}
		return 0, fmt.Errorf("%s: no series with labels %v", name, want)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
