package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	documentsDiscoveredTotal atomic.Uint64
	documentsSkippedTotal    atomic.Uint64
	jobsStartedTotal         atomic.Uint64
	jobsSucceededTotal       atomic.Uint64
	jobsFailedTotal          atomic.Uint64
	analysisPollsTotal       atomic.Uint64
	collaboratorRetriesTotal atomic.Uint64
	jobsActive               atomic.Int64

	jobDuration = newHistogram([]float64{1000, 5000, 10000, 30000, 60000, 120000, 300000, 600000})
)

// AddDocumentsDiscovered adds n to the discovered counter.
func AddDocumentsDiscovered(n int) {
	if n > 0 {
		documentsDiscoveredTotal.Add(uint64(n))
	}
}

// AddDocumentsSkipped adds n to the skipped counter.
func AddDocumentsSkipped(n int) {
	if n > 0 {
		documentsSkippedTotal.Add(uint64(n))
	}
}

// IncJobStarted increments the started counter and the active gauge.
func IncJobStarted() {
	jobsStartedTotal.Add(1)
	jobsActive.Add(1)
}

// IncJobSucceeded increments the succeeded counter and releases the active gauge.
func IncJobSucceeded() {
	jobsSucceededTotal.Add(1)
	jobsActive.Add(-1)
}

// IncJobFailed increments the failed counter and releases the active gauge.
func IncJobFailed() {
	jobsFailedTotal.Add(1)
	jobsActive.Add(-1)
}

// IncAnalysisPoll increments the analysis poll counter.
func IncAnalysisPoll() {
	analysisPollsTotal.Add(1)
}

// IncRetry increments the collaborator retry counter.
func IncRetry() {
	collaboratorRetriesTotal.Add(1)
}

// ObserveJobDuration records a job duration.
func ObserveJobDuration(d time.Duration) {
	value := float64(d) / float64(time.Millisecond)
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "batch_documents_discovered_total", "Source documents discovered", documentsDiscoveredTotal.Load())
	writeCounter(&buf, "batch_documents_skipped_total", "Documents skipped because output already exists", documentsSkippedTotal.Load())
	writeCounter(&buf, "batch_jobs_started_total", "Jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "batch_jobs_succeeded_total", "Jobs succeeded", jobsSucceededTotal.Load())
	writeCounter(&buf, "batch_jobs_failed_total", "Jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "batch_analysis_polls_total", "Analysis status polls issued", analysisPollsTotal.Load())
	writeCounter(&buf, "batch_collaborator_retries_total", "Collaborator calls retried after transient errors", collaboratorRetriesTotal.Load())
	writeGauge(&buf, "batch_jobs_active", "Jobs currently in flight", jobsActive.Load())
	writeHistogram(&buf, "batch_job_duration_ms", "Job duration in milliseconds", jobDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts value in the first bucket whose bound is >= value.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeGauge(buf *bytes.Buffer, name, help string, value int64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s gauge\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
