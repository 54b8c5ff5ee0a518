package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oqtopus-team/cosim-plugin/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/oqtopus-team/cosim-plugin"

const (
	callbacksKeyInMetrics = "callbacks"
	failuresKeyInMetrics  = "failures"
)

// CallbackCount is the number of times one callback was dispatched and how
// many of those dispatches failed.
type CallbackCount struct {
	Calls    int64
	Failures int64
}

// DispatchMetrics records every callback dispatched to a plugin. Spans and
// counters go to the global otel providers; per-callback totals are kept in
// memory and can be written to a daily metrics log.
type DispatchMetrics struct {
	tracer    trace.Tracer
	callbacks metric.Int64Counter
	failures  metric.Int64Counter

	mu     sync.Mutex
	counts map[string]*CallbackCount
	dl     *dailyLogger
	logger *slog.Logger
}

func NewDispatchMetrics() (*DispatchMetrics, error) {
	meter := otel.Meter(instrumentationName)
	callbacks, err := meter.Int64Counter("cosim.plugin.callbacks",
		metric.WithDescription("number of dispatched plugin callbacks"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("cosim.plugin.callback_failures",
		metric.WithDescription("number of plugin callbacks that returned an error"))
	if err != nil {
		return nil, err
	}
	return &DispatchMetrics{
		tracer:    otel.Tracer(instrumentationName),
		callbacks: callbacks,
		failures:  failures,
		counts:    map[string]*CallbackCount{},
	}, nil
}

// EnableFileLog makes Flush write the totals as JSON lines to a daily file
// under fileDir.
func (d *DispatchMetrics) EnableFileLog(fileDir string) error {
	if err := common.IsDirWritable(fileDir); err != nil {
		return fmt.Errorf("failed to write to %s: %w", fileDir, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dl = newDailyLogger(fileDir)
	d.logger = slog.New(slog.NewJSONHandler(d.dl, nil))
	return nil
}

// Begin starts the span of one callback. The returned function ends it and
// must be called exactly once with the callback's result.
func (d *DispatchMetrics) Begin(ctx context.Context, plugin, callback string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("cosim.plugin", plugin),
		attribute.String("cosim.callback", callback),
	}
	ctx, span := d.tracer.Start(ctx, callback, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		defer span.End()
		d.callbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
		d.mu.Lock()
		c, ok := d.counts[callback]
		if !ok {
			c = &CallbackCount{}
			d.counts[callback] = c
		}
		c.Calls++
		if err != nil {
			c.Failures++
		}
		d.mu.Unlock()
		if err != nil {
			d.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

// Counts returns a snapshot of the totals keyed by callback name.
func (d *DispatchMetrics) Counts() map[string]CallbackCount {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := make(map[string]CallbackCount, len(d.counts))
	for k, v := range d.counts {
		res[k] = *v
	}
	return res
}

// Flush writes the current totals to the metrics log, if enabled.
func (d *DispatchMetrics) Flush() {
	counts := d.Counts()
	d.mu.Lock()
	logger := d.logger
	d.mu.Unlock()
	if logger == nil {
		zap.L().Debug("metrics log is disabled")
		return
	}
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		logger.Info(
			"Metrics",
			slog.String("callback", name),
			slog.Int64(callbacksKeyInMetrics, counts[name].Calls),
			slog.Int64(failuresKeyInMetrics, counts[name].Failures),
		)
	}
}

func (d *DispatchMetrics) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dl == nil {
		return nil
	}
	err := d.dl.Close()
	d.dl = nil
	d.logger = nil
	return err
}

type dailyLogger struct {
	mu              sync.Mutex
	fileDir         string
	currentFileName string
	file            *os.File
}

func newDailyLogger(fileDir string) *dailyLogger {
	return &dailyLogger{
		fileDir: fileDir,
	}
}

func (dl *dailyLogger) Write(p []byte) (n int, err error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	fileName := fmt.Sprintf("metrics-%s.log", time.Now().Format("2006-01-02"))
	if dl.file == nil || dl.currentFileName != fileName {
		if dl.file != nil {
			dl.file.Close()
		}
		var err error
		dl.file, err = os.OpenFile(filepath.Join(dl.fileDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, err
		}
		dl.currentFileName = fileName
	}

	return dl.file.Write(p)
}

func (dl *dailyLogger) Close() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		err := dl.file.Close()
		dl.file = nil
		return err
	}
	return nil
}
