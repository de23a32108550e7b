// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStreamLifecycle(t *testing.T) {
	streamsActive.Set(0)
	streamsFinished.Reset()
	streamDuration.Reset()

	RecordStreamStart()
	RecordStreamStart()
	if got := testutil.ToFloat64(streamsActive); got != 2 {
		t.Errorf("active = %f, want 2", got)
	}

	RecordStreamEnd(OutcomeCompleted, 0.5)
	RecordStreamEnd(OutcomeCancelled, 0.1)

	if got := testutil.ToFloat64(streamsActive); got != 0 {
		t.Errorf("active = %f, want 0", got)
	}
	if got := testutil.ToFloat64(streamsFinished.WithLabelValues(OutcomeCompleted)); got != 1 {
		t.Errorf("completed = %f, want 1", got)
	}
	if got := testutil.ToFloat64(streamsFinished.WithLabelValues(OutcomeCancelled)); got != 1 {
		t.Errorf("cancelled = %f, want 1", got)
	}
	if testutil.CollectAndCount(streamDuration) != 2 {
		t.Error("expected one histogram series per outcome")
	}
}

func TestRecordFrame(t *testing.T) {
	framesTotal.Reset()

	RecordFrame(FrameStructured)
	RecordFrame(FrameStructured)
	RecordFrame(FrameMalformed)

	if got := testutil.ToFloat64(framesTotal.WithLabelValues(FrameStructured)); got != 2 {
		t.Errorf("structured = %f, want 2", got)
	}
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(FrameMalformed)); got != 1 {
		t.Errorf("malformed = %f, want 1", got)
	}
}

func TestCountersIgnoreNonPositive(t *testing.T) {
	before := testutil.ToFloat64(recoveriesTotal)
	RecordRecoveries(0)
	RecordRecoveries(-3)
	RecordRecoveries(2)
	if got := testutil.ToFloat64(recoveriesTotal) - before; got != 2 {
		t.Errorf("recoveries delta = %f, want 2", got)
	}

	before = testutil.ToFloat64(bytesReceived)
	RecordBytes(0)
	RecordBytes(128)
	if got := testutil.ToFloat64(bytesReceived) - before; got != 128 {
		t.Errorf("bytes delta = %f, want 128", got)
	}
}

func TestRecordUpload(t *testing.T) {
	uploadsTotal.Reset()

	RecordUpload(true)
	RecordUpload(false)
	RecordUpload(false)

	if got := testutil.ToFloat64(uploadsTotal.WithLabelValues("error")); got != 2 {
		t.Errorf("error uploads = %f, want 2", got)
	}
}

func TestExporterHandler(t *testing.T) {
	RecordPartial()
	RecordFallback()
	RecordDecodeAnomalies(1)

	e := NewExporter(":0")
	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{
		"arth_partials_total",
		"arth_fallbacks_total",
		"arth_decode_anomalies_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestExporterShutdownBeforeStart(t *testing.T) {
	e := NewExporter(":0")
	if err := e.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown = %v, want nil", err)
	}
}
