package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type operationKey struct {
	op   string
	code string
}

type errorKey struct {
	op string
}

type latencyKey struct {
	op string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu         sync.Mutex
	operations map[operationKey]uint64
	errors     map[errorKey]uint64
	latency    map[latencyKey]*histogram
}

var opCollector = &collector{
	operations: make(map[operationKey]uint64),
	errors:     make(map[errorKey]uint64),
	latency:    make(map[latencyKey]*histogram),
}

// ObserveOperation records the outcome of a single service operation.
// code is "ok" for successes or the unified error code otherwise.
func ObserveOperation(op, code string, duration time.Duration) {
	opCollector.observe(op, code, duration)
}

func (c *collector) observe(op, code string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations[operationKey{op: op, code: code}]++
	if code != "ok" {
		c.errors[errorKey{op: op}]++
	}

	latKey := latencyKey{op: op}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, opCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type operationMetric struct {
		operationKey
		value uint64
	}
	type errorMetric struct {
		errorKey
		value uint64
	}
	type latencyMetric struct {
		latencyKey
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	ops := make([]operationMetric, 0, len(c.operations))
	for key, value := range c.operations {
		ops = append(ops, operationMetric{operationKey: key, value: value})
	}
	errs := make([]errorMetric, 0, len(c.errors))
	for key, value := range c.errors {
		errs = append(errs, errorMetric{errorKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for key, hist := range c.latency {
		lats = append(lats, latencyMetric{
			latencyKey: key,
			buckets:    append([]float64(nil), hist.buckets...),
			counts:     append([]uint64(nil), hist.counts...),
			sum:        hist.sum,
			count:      hist.count,
		})
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].op == ops[j].op {
			return ops[i].code < ops[j].code
		}
		return ops[i].op < ops[j].op
	})
	sort.Slice(errs, func(i, j int) bool {
		return errs[i].op < errs[j].op
	})
	sort.Slice(lats, func(i, j int) bool {
		return lats[i].op < lats[j].op
	})

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP opendca_operations_total Total number of service operations processed.\n")
	builder.WriteString("# TYPE opendca_operations_total counter\n")
	for _, metric := range ops {
		builder.WriteString(fmt.Sprintf("opendca_operations_total{op=\"%s\",code=\"%s\"} %d\n",
			escape(metric.op), escape(metric.code), metric.value))
	}

	builder.WriteString("# HELP opendca_operation_errors_total Total number of service operations that failed.\n")
	builder.WriteString("# TYPE opendca_operation_errors_total counter\n")
	for _, metric := range errs {
		builder.WriteString(fmt.Sprintf("opendca_operation_errors_total{op=\"%s\"} %d\n",
			escape(metric.op), metric.value))
	}

	builder.WriteString("# HELP opendca_operation_duration_seconds Service operation duration in seconds.\n")
	builder.WriteString("# TYPE opendca_operation_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("opendca_operation_duration_seconds_bucket{op=\"%s\",le=\"%s\"} %d\n",
				escape(metric.op), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("opendca_operation_duration_seconds_bucket{op=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.op), metric.count))
		builder.WriteString(fmt.Sprintf("opendca_operation_duration_seconds_sum{op=\"%s\"} %s\n",
			escape(metric.op), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("opendca_operation_duration_seconds_count{op=\"%s\"} %d\n",
			escape(metric.op), metric.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
