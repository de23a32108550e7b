// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics holds the Prometheus instrumentation for reply streams,
// frame classification and media uploads.
//
// Collectors are package-level and always updated; they are only exposed
// when an Exporter is started (see config metrics.addr).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arth"

// Stream outcomes used as label values.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Frame classes used as label values.
const (
	FrameStructured  = "structured"
	FrameMalformed   = "malformed"
	FrameRemoteError = "remote_error"
)

var (
	streamsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_started_total",
			Help:      "Total number of reply streams started",
		},
	)

	streamsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finished_total",
			Help:      "Total number of reply streams finished, by outcome",
		},
		[]string{"outcome"}, // completed, cancelled, failed
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of reply streams currently reading",
		},
	)

	streamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Reply stream lifetime in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Complete JSON frames extracted from reply streams, by class",
		},
		[]string{"class"},
	)

	partialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_total",
			Help:      "Partial text updates emitted while no frame was complete",
		},
	)

	fallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Streams that ended with unparsed text delivered as fallback",
		},
	)

	recoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_recoveries_total",
			Help:      "Balanced spans that failed to parse and were skipped",
		},
	)

	decodeAnomalies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_anomalies_total",
			Help:      "Chunks containing invalid UTF-8 that was replaced",
		},
	)

	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Raw reply bytes read from transports",
		},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Media uploads, by status",
		},
		[]string{"status"}, // success, error
	)
)

// allMetrics is registered by NewExporter.
var allMetrics = []prometheus.Collector{
	streamsStarted,
	streamsFinished,
	streamsActive,
	streamDuration,
	framesTotal,
	partialsTotal,
	fallbacksTotal,
	recoveriesTotal,
	decodeAnomalies,
	bytesReceived,
	uploadsTotal,
}

// RecordStreamStart counts a stream entering the active state.
func RecordStreamStart() {
	streamsStarted.Inc()
	streamsActive.Inc()
}

// RecordStreamEnd counts a finished stream and its lifetime.
func RecordStreamEnd(outcome string, seconds float64) {
	streamsActive.Dec()
	streamsFinished.WithLabelValues(outcome).Inc()
	streamDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordFrame counts one classified frame.
func RecordFrame(class string) {
	framesTotal.WithLabelValues(class).Inc()
}

// RecordPartial counts one partial text update.
func RecordPartial() {
	partialsTotal.Inc()
}

// RecordFallback counts a stream that ended with fallback text.
func RecordFallback() {
	fallbacksTotal.Inc()
}

// RecordRecoveries adds skipped unparsable spans.
func RecordRecoveries(n int) {
	if n > 0 {
		recoveriesTotal.Add(float64(n))
	}
}

// RecordDecodeAnomalies adds chunks that contained invalid UTF-8.
func RecordDecodeAnomalies(n int) {
	if n > 0 {
		decodeAnomalies.Add(float64(n))
	}
}

// RecordBytes adds raw bytes read from a transport.
func RecordBytes(n int) {
	if n > 0 {
		bytesReceived.Add(float64(n))
	}
}

// RecordUpload counts one media upload attempt.
func RecordUpload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(status).Inc()
}
