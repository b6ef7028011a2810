// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSubjectKey(t *testing.T) {
	s := Subject{Owner: "octocat", Repo: "hello-world", Number: 42}
	if got := s.Key(); got != "octocat/hello-world#42" {
		t.Fatalf("Key() = %q", got)
	}

	parsed, err := ParseSubjectKey(s.Key())
	if err != nil {
		t.Fatalf("ParseSubjectKey() error = %v", err)
	}
	if parsed != s {
		t.Errorf("ParseSubjectKey() = %+v, want %+v", parsed, s)
	}

	for _, bad := range []string{"", "octocat/hello-world", "octocat#1", "a/b#0", "a/b#-1"} {
		if _, err := ParseSubjectKey(bad); err == nil {
			t.Errorf("ParseSubjectKey(%q) should fail", bad)
		}
	}
}

func TestTrackedInterval_FoldActive(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	iv := &TrackedInterval{State: IntervalActive, LastResumeAt: start}

	iv.FoldActive(start.Add(1500 * time.Millisecond))
	if iv.AccumulatedActiveMs != 1500 {
		t.Errorf("AccumulatedActiveMs = %d, want 1500", iv.AccumulatedActiveMs)
	}
	if iv.DurationSeconds() != 1 {
		t.Errorf("DurationSeconds() = %d, want 1", iv.DurationSeconds())
	}

	iv.State = IntervalPaused
	iv.FoldActive(start.Add(time.Hour))
	if iv.AccumulatedActiveMs != 1500 {
		t.Errorf("paused interval accumulated time: %d", iv.AccumulatedActiveMs)
	}

	iv.State = IntervalActive
	iv.LastResumeAt = start.Add(time.Hour)
	iv.FoldActive(start) // clock went backwards
	if iv.AccumulatedActiveMs != 1500 {
		t.Errorf("backwards clock changed accumulated time: %d", iv.AccumulatedActiveMs)
	}
}

func TestMetadataValidate(t *testing.T) {
	tooMany := Metadata{}
	for i := 0; i <= MaxMetadataKeys; i++ {
		tooMany[string(rune('a'+i))] = i
	}

	tests := []struct {
		name    string
		meta    Metadata
		wantErr error
	}{
		{"nil", nil, nil},
		{"scalars", Metadata{"files": 3, "draft": true, "ratio": 0.5, "state": "open"}, nil},
		{"too many keys", tooMany, ErrMetadataTooLarge},
		{"free text", Metadata{"body": strings.Repeat("x", MaxMetadataValueLength+1)}, ErrMetadataValue},
		{"nested map", Metadata{"nested": map[string]any{"a": 1}}, ErrMetadataValue},
		{"slice", Metadata{"list": []string{"a"}}, ErrMetadataValue},
		{"empty key", Metadata{"": 1}, ErrMetadataValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestActivityTypeValid(t *testing.T) {
	for _, at := range ActivityTypes {
		if !at.Valid() {
			t.Errorf("%s should be valid", at)
		}
	}
	if ActivityType("comment_body").Valid() {
		t.Error("unknown type reported valid")
	}
}
