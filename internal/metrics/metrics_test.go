package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestScanMetricsWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewScanMetrics(registry)

	m.ObserveScanned("filesystem")
	m.ObserveScanned("filesystem")
	m.ObserveYielded("filesystem")
	m.ObserveSkipped("filesystem", ReasonUnregistered)
	m.ObserveIndexPage("stale")
	m.ObserveIndexRemoval()

	path := filepath.Join(t.TempDir(), "zpreserve.prom")
	if err := WriteTextfile(path, registry); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	for _, want := range []string{
		`zpreserve_candidates_scanned_total{strategy="filesystem"} 2`,
		`zpreserve_candidates_yielded_total{strategy="filesystem"} 1`,
		`zpreserve_candidates_skipped_total{reason="unregistered",strategy="filesystem"} 1`,
		`zpreserve_index_pages_total{query="stale"} 1`,
		`zpreserve_index_desync_removals_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestNilScanMetricsIsNoop(t *testing.T) {
	var m *ScanMetrics
	m.ObserveScanned("index")
	m.ObserveYielded("index")
	m.ObserveSkipped("index", ReasonError)
	m.ObserveIndexPage("registered")
	m.ObserveIndexRemoval()
}
