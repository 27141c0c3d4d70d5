package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/utils"
)

// Collector records bridge measurements into a private Prometheus registry.
// A nil *Collector and a disabled one accept every call and record nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *utils.StructuredLogger

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	foreignCalls      *prometheus.CounterVec
	readerCloses      *prometheus.CounterVec
	openReaders       prometheus.Gauge
	errorCounter      *prometheus.CounterVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// DefaultConfig returns an enabled configuration serving /metrics on 9090.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "docbridge",
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks metrics for one bridge operation
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
	AvgSize       float64       `json:"avg_size"`
}

// NewCollector creates a collector. A nil config uses DefaultConfig. A nil
// logger disables server diagnostics.
func NewCollector(config *Config, logger *utils.StructuredLogger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	logger = logger.WithComponent("metrics")

	if !config.Enabled {
		return &Collector{config: config, logger: logger}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		logger:     logger,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()
	if err := collector.registerMetrics(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "failed to register metrics").
			WithComponent("metrics").
			WithCause(err)
	}

	return collector, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// Registry returns the registry backing the collector, or nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Start serves the registry over HTTP on the configured port. It returns
// once the listener is bound.
func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return errors.Newf(errors.ErrCodeInvalidConfig, "failed to listen on metrics port %d", c.config.Port).
			WithComponent("metrics").
			WithOperation("start").
			WithCause(err)
	}

	c.mu.Lock()
	c.listener = ln
	c.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.WithError(err).Error("metrics server stopped")
		}
	}()

	c.logger.Info("metrics server started", map[string]interface{}{
		"addr": ln.Addr().String(),
		"path": c.config.Path,
	})
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (c *Collector) Addr() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.listener = nil
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one bridge operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.TotalSize += size
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	metrics.AvgSize = float64(metrics.TotalSize) / float64(metrics.Count)
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    status(success),
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	if size > 0 {
		c.operationSize.With(prometheus.Labels{
			"operation": operation,
		}).Observe(float64(size))
	}
}

// RecordForeignCall records one static call into the runtime.
func (c *Collector) RecordForeignCall(method string, success bool) {
	if !c.enabled() {
		return
	}
	c.foreignCalls.With(prometheus.Labels{
		"method": method,
		"status": status(success),
	}).Inc()
}

// RecordReaderClose records a reader close. failed is true when the foreign
// close raised and the error was swallowed.
func (c *Collector) RecordReaderClose(failed bool) {
	if !c.enabled() {
		return
	}
	c.readerCloses.With(prometheus.Labels{
		"status": status(!failed),
	}).Inc()
}

// UpdateOpenReaders adjusts the open reader gauge by delta.
func (c *Collector) UpdateOpenReaders(delta int) {
	if !c.enabled() {
		return
	}
	c.openReaders.Add(float64(delta))
}

// RecordError records an error by its bridge category.
func (c *Collector) RecordError(operation string, err error) {
	if !c.enabled() || err == nil {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"kind":      string(errors.KindOf(err)),
	}).Inc()
}

// GetMetrics returns a copy of the per-operation summaries.
func (c *Collector) GetMetrics() map[string]interface{} {
	metrics := make(map[string]interface{})
	if !c.enabled() {
		return metrics
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]*OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		op := *v
		operations[k] = &op
	}

	metrics["operations"] = operations
	metrics["last_reset"] = c.lastReset
	metrics["uptime"] = time.Since(c.lastReset)
	return metrics
}

// ResetMetrics clears the per-operation summaries. Prometheus series are
// left untouched.
func (c *Collector) ResetMetrics() {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (c *Collector) initMetrics() {
	cfg := c.config
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
			Buckets:     buckets,
		}, []string{"operation"})
	}

	c.operationCounter = counter("operations_total", "Total number of bridge operations", "operation", "status")
	c.operationDuration = histogram("operation_duration_seconds", "Duration of bridge operations in seconds",
		prometheus.ExponentialBuckets(0.001, 2, 15)) // 1ms to ~32s
	c.operationSize = histogram("operation_size_bytes", "Bytes produced by bridge operations",
		prometheus.ExponentialBuckets(1024, 2, 20)) // 1KB to ~1GB
	c.foreignCalls = counter("foreign_calls_total", "Total number of static calls into the runtime", "method", "status")
	c.readerCloses = counter("reader_closes_total", "Total number of foreign reader closes", "status")
	c.errorCounter = counter("errors_total", "Total number of errors by category", "operation", "kind")

	c.openReaders = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "open_readers",
		Help:        "Number of streaming readers not yet closed",
		ConstLabels: cfg.Labels,
	})
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.foreignCalls,
		c.readerCloses,
		c.openReaders,
		c.errorCounter,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"docbridge-metrics"}`))
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := c.GetMetrics()
	operations, _ := metrics["operations"].(map[string]*OperationMetrics)

	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)

	type row struct {
		Operation string `json:"operation"`
		*OperationMetrics
	}
	rows := make([]row, 0, len(names))
	for _, name := range names {
		rows = append(rows, row{Operation: name, OperationMetrics: operations[name]})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime":     fmt.Sprint(metrics["uptime"]),
		"operations": rows,
	})
}
