// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package backend

import (
	"time"

	"github.com/tkhieu/worktime/internal/models"
)

// MaxBatchSize is the largest batch POST /activities/batch accepts.
const MaxBatchSize = 100

// StartSessionRequest is the body of POST /sessions/start.
type StartSessionRequest struct {
	RepoOwner  string `json:"repo_owner"`
	RepoName   string `json:"repo_name"`
	ItemNumber int    `json:"item_number"`
}

// StartSessionResponse is returned by POST /sessions/start.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

// EndSessionRequest is the body of PATCH /sessions/{id}/end.
type EndSessionRequest struct {
	DurationSeconds int64 `json:"duration_seconds"`
}

// EndSessionResponse is returned by PATCH /sessions/{id}/end.
type EndSessionResponse struct {
	SessionID       string `json:"session_id"`
	DurationSeconds int64  `json:"duration_seconds"`
	Status          string `json:"status"`
}

// ActivityRequest is the body of POST /activities and one element of a batch.
type ActivityRequest struct {
	ActivityType string          `json:"activity_type"`
	RepoOwner    string          `json:"repo_owner"`
	RepoName     string          `json:"repo_name"`
	ItemNumber   int             `json:"item_number"`
	Metadata     models.Metadata `json:"metadata,omitempty"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
}

// ActivityResponse is returned by POST /activities.
type ActivityResponse struct {
	ActivityID string `json:"activity_id"`
}

// BatchRequest is the body of POST /activities/batch.
type BatchRequest struct {
	Activities []ActivityRequest `json:"activities"`
}

// BatchResponse is returned by POST /activities/batch.
type BatchResponse struct {
	CreatedCount int      `json:"created_count"`
	ActivityIDs  []string `json:"activity_ids"`
}

// NewStartSessionRequest builds the create call for a subject.
func NewStartSessionRequest(s models.Subject) StartSessionRequest {
	return StartSessionRequest{RepoOwner: s.Owner, RepoName: s.Repo, ItemNumber: s.Number}
}

// NewActivityRequest builds the create call for an activity event.
func NewActivityRequest(e *models.ActivityEvent) ActivityRequest {
	req := ActivityRequest{
		ActivityType: string(e.Type),
		RepoOwner:    e.Subject.Owner,
		RepoName:     e.Subject.Repo,
		ItemNumber:   e.Subject.Number,
		Metadata:     e.Metadata,
	}
	if !e.CreatedAt.IsZero() {
		created := e.CreatedAt.UTC()
		req.CreatedAt = &created
	}
	return req
}
