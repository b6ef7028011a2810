// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreWrite(t *testing.T) {
	before := testutil.ToFloat64(StoreWrites.WithLabelValues("op", "put"))
	RecordStoreWrite("op", "put", 2*time.Millisecond)
	after := testutil.ToFloat64(StoreWrites.WithLabelValues("op", "put"))

	if after-before != 1 {
		t.Errorf("store writes delta = %v, want 1", after-before)
	}
}

func TestRecordSyncPass(t *testing.T) {
	tests := []struct {
		outcome string
	}{
		{"completed"},
		{"auth_required"},
		{"canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			before := testutil.ToFloat64(SyncPasses.WithLabelValues(tt.outcome))
			RecordSyncPass(tt.outcome, 150*time.Millisecond)
			if got := testutil.ToFloat64(SyncPasses.WithLabelValues(tt.outcome)) - before; got != 1 {
				t.Errorf("sync passes delta = %v, want 1", got)
			}
		})
	}

	if testutil.ToFloat64(SyncLastSuccess) == 0 {
		t.Error("completed pass should set last success timestamp")
	}
}

func TestOperationCounters(t *testing.T) {
	RecordDelivered("interval_start")
	RecordFailed("interval_end", "transient")
	RecordDeadLettered("activity_create", "permanent")

	if testutil.ToFloat64(OperationsDelivered.WithLabelValues("interval_start")) < 1 {
		t.Error("delivered counter not incremented")
	}
	if testutil.ToFloat64(OperationsFailed.WithLabelValues("interval_end", "transient")) < 1 {
		t.Error("failed counter not incremented")
	}
	if testutil.ToFloat64(OperationsDeadLettered.WithLabelValues("activity_create", "permanent")) < 1 {
		t.Error("dead-lettered counter not incremented")
	}
}

func TestSetBackendOnline(t *testing.T) {
	SetBackendOnline(true)
	if got := testutil.ToFloat64(BackendOnline); got != 1 {
		t.Errorf("BackendOnline = %v, want 1", got)
	}
	SetBackendOnline(false)
	if got := testutil.ToFloat64(BackendOnline); got != 0 {
		t.Errorf("BackendOnline = %v, want 0", got)
	}
}
