package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/sessionstore/internal/valueset"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

func TestCollector_RecordDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDropped(valueset.KindSession, valueset.DropLegacyVersion)
	c.RecordDropped(valueset.KindSession, valueset.DropLegacyVersion)

	m := findMetric(t, reg, "sessionstore_records_dropped_total", map[string]string{"kind": "session", "reason": "legacy_version"})
	require.NotNil(t, m)
	assert.Equal(t, 2.0, m.GetCounter().GetValue())
}

func TestCollector_RecordOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperation(valueset.KindApiToken, "remove", true)
	c.RecordOperation(valueset.KindApiToken, "remove", false)

	changed := findMetric(t, reg, "sessionstore_operations_total", map[string]string{"op": "remove", "result": "changed"})
	require.NotNil(t, changed)
	assert.Equal(t, 1.0, changed.GetCounter().GetValue())

	noop := findMetric(t, reg, "sessionstore_operations_total", map[string]string{"op": "remove", "result": "noop"})
	require.NotNil(t, noop)
	assert.Equal(t, 1.0, noop.GetCounter().GetValue())
}

func TestCollector_RecordTrim(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTrim(valueset.KindSession, valueset.TrimStats{Expired: 3, Evicted: 1})
	c.RecordTrim(valueset.KindSession, valueset.TrimStats{})
	c.RecordReplMerge(valueset.KindOAuth2Session, true)
	c.RecordTrimPass(150 * time.Millisecond)

	expired := findMetric(t, reg, "sessionstore_trimmed_total", map[string]string{"cause": "expired"})
	require.NotNil(t, expired)
	assert.Equal(t, 3.0, expired.GetCounter().GetValue())

	evicted := findMetric(t, reg, "sessionstore_trimmed_total", map[string]string{"cause": "evicted"})
	require.NotNil(t, evicted)
	assert.Equal(t, 1.0, evicted.GetCounter().GetValue())

	skipped := findMetric(t, reg, "sessionstore_repl_merges_total", map[string]string{"outcome": "skipped"})
	require.NotNil(t, skipped)
	assert.Equal(t, 1.0, skipped.GetCounter().GetValue())

	pass := findMetric(t, reg, "sessionstore_trim_pass_seconds", nil)
	require.NotNil(t, pass)
	assert.Equal(t, uint64(1), pass.GetHistogram().GetSampleCount())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDropped(valueset.KindApiToken, valueset.DropExpiry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sessionstore_records_dropped_total")
}
