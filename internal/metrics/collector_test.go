package metrics

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
)

var _ types.MetricsRecorder = (*Collector)(nil)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "test",
	}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return collector
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "docbridge",
			Subsystem: "test",
			Labels:    map[string]string{"instance": "a"},
		}
		collector, err := NewCollector(config, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.Registry() == nil {
			t.Error("collector.registry is nil")
		}
		if collector.operations == nil {
			t.Error("collector.operations map is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil, nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Port != 9090 {
			t.Errorf("default port = %d, want 9090", collector.config.Port)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "docbridge" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "docbridge")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}
		collector.RecordOperation("detect", time.Millisecond, 1, true)
		collector.RecordError("detect", stderrors.New("boom"))
		if len(collector.GetMetrics()) != 0 {
			t.Error("disabled collector recorded metrics")
		}
	})
}

func TestNilCollector(t *testing.T) {
	t.Parallel()

	var collector *Collector
	collector.RecordOperation("detect", time.Millisecond, 1, true)
	collector.RecordForeignCall("detect", true)
	collector.RecordReaderClose(false)
	collector.UpdateOpenReaders(1)
	collector.RecordError("detect", stderrors.New("boom"))
	collector.ResetMetrics()

	if err := collector.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
	if err := collector.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
	if collector.Addr() != "" {
		t.Errorf("Addr() = %q, want empty", collector.Addr())
	}
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	t.Run("record successful operation", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("parseFileToString", 100*time.Millisecond, 1024, true)

		operations := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)
		op, exists := operations["parseFileToString"]
		if !exists {
			t.Fatal("operation not recorded")
		}
		if op.Count != 1 {
			t.Errorf("op.Count = %d, want 1", op.Count)
		}
		if op.TotalSize != 1024 {
			t.Errorf("op.TotalSize = %d, want 1024", op.TotalSize)
		}
		if op.Errors != 0 {
			t.Errorf("op.Errors = %d, want 0", op.Errors)
		}

		got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("parseFileToString", "success"))
		if got != 1 {
			t.Errorf("operations_total{status=success} = %v, want 1", got)
		}
	})

	t.Run("averages across operations", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("parseBytes", 100*time.Millisecond, 100, true)
		collector.RecordOperation("parseBytes", 300*time.Millisecond, 300, false)

		op := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)["parseBytes"]
		if op.Count != 2 {
			t.Errorf("op.Count = %d, want 2", op.Count)
		}
		if op.Errors != 1 {
			t.Errorf("op.Errors = %d, want 1", op.Errors)
		}
		if op.AvgDuration != 200*time.Millisecond {
			t.Errorf("op.AvgDuration = %v, want 200ms", op.AvgDuration)
		}
		if op.AvgSize != 200 {
			t.Errorf("op.AvgSize = %.2f, want 200.00", op.AvgSize)
		}
		if got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("parseBytes", "error")); got != 1 {
			t.Errorf("operations_total{status=error} = %v, want 1", got)
		}
	})

	t.Run("metrics copy is detached", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("detect", time.Millisecond, 0, true)

		op := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)["detect"]
		op.Count = 99

		again := collector.GetMetrics()["operations"].(map[string]*OperationMetrics)["detect"]
		if again.Count != 1 {
			t.Errorf("internal count = %d after mutating copy, want 1", again.Count)
		}
	})
}

func TestRecordBridgeEvents(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)

	collector.RecordForeignCall("extractEmbedded", true)
	collector.RecordForeignCall("extractEmbedded", false)
	collector.RecordReaderClose(false)
	collector.RecordReaderClose(true)
	collector.UpdateOpenReaders(1)
	collector.UpdateOpenReaders(1)
	collector.UpdateOpenReaders(-1)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"foreign success", testutil.ToFloat64(collector.foreignCalls.WithLabelValues("extractEmbedded", "success")), 1},
		{"foreign error", testutil.ToFloat64(collector.foreignCalls.WithLabelValues("extractEmbedded", "error")), 1},
		{"close ok", testutil.ToFloat64(collector.readerCloses.WithLabelValues("success")), 1},
		{"close swallowed", testutil.ToFloat64(collector.readerCloses.WithLabelValues("error")), 1},
		{"open readers", testutil.ToFloat64(collector.openReaders), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordError("parseFile", errors.NewError(errors.ErrCodeIO, "missing"))
	collector.RecordError("parseFile", errors.NewError(errors.ErrCodeParse, "bad"))
	collector.RecordError("parseFile", stderrors.New("plain"))
	collector.RecordError("parseFile", nil)

	for kind, want := range map[string]float64{
		string(errors.CategoryIO):      1,
		string(errors.CategoryParse):   1,
		string(errors.CategoryUnknown): 1,
	} {
		if got := testutil.ToFloat64(collector.errorCounter.WithLabelValues("parseFile", kind)); got != want {
			t.Errorf("errors_total{kind=%s} = %v, want %v", kind, got, want)
		}
	}
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordOperation("detect", time.Millisecond, 10, true)
	before := collector.GetMetrics()["last_reset"].(time.Time)

	collector.ResetMetrics()

	metrics := collector.GetMetrics()
	if n := len(metrics["operations"].(map[string]*OperationMetrics)); n != 0 {
		t.Errorf("operations after reset = %d, want 0", n)
	}
	if metrics["last_reset"].(time.Time).Before(before) {
		t.Error("last_reset moved backwards")
	}
}

func TestCollectorServer(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(&Config{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "docbridge",
	}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if err := collector.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = collector.Stop(ctx)
	})

	collector.RecordOperation("detect", time.Millisecond, 0, true)

	addr := collector.Addr()
	if addr == "" {
		t.Fatal("Addr() is empty after Start")
	}
	port := addr[strings.LastIndex(addr, ":"):]

	get := func(path string) string {
		t.Helper()
		resp, err := http.Get("http://127.0.0.1" + port + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		return string(body)
	}

	if body := get("/metrics"); !strings.Contains(body, `docbridge_operations_total{operation="detect",status="success"} 1`) {
		t.Errorf("/metrics missing operation counter:\n%s", body)
	}
	if body := get("/health"); !strings.Contains(body, "healthy") {
		t.Errorf("/health = %q", body)
	}
	if body := get("/debug/operations"); !strings.Contains(body, `"operation":"detect"`) {
		t.Errorf("/debug/operations = %q", body)
	}
}
