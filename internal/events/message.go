// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package events turns detection messages into tracker and outbox calls.
//
// The detection layer (browser extension, editor plugin) only reports what
// it saw: a pull request page, a tab becoming hidden or visible, a tab
// closing, a review action. Router maps each message to the matching
// session tracker or activity outbox operation.
package events

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/validation"
)

// MessageType names a detection message.
type MessageType string

const (
	SubjectDetected      MessageType = "subject_detected"
	ContextHidden        MessageType = "context_hidden"
	ContextVisible       MessageType = "context_visible"
	ContextClosed        MessageType = "context_closed"
	ReviewActionDetected MessageType = "review_action_detected"
)

// ErrInvalidMessage is returned for messages that cannot be decoded or that
// lack a field their type needs.
var ErrInvalidMessage = errors.New("invalid detection message")

// Message is one detection message.
type Message struct {
	Type       MessageType         `json:"type" validate:"required,oneof=subject_detected context_hidden context_visible context_closed review_action_detected"`
	Subject    *models.Subject     `json:"subject,omitempty" validate:"required_if=Type subject_detected"`
	ContextID  string              `json:"context_id,omitempty" validate:"required_unless=Type review_action_detected,omitempty,context_id"`
	ActionType models.ActivityType `json:"action_type,omitempty" validate:"required_if=Type review_action_detected,omitempty,activity_type"`
	Metadata   models.Metadata     `json:"metadata,omitempty"`
}

// Decode parses a JSON message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrInvalidMessage, err.Error())
	}
	return msg, nil
}

// Validate checks the message shape. Field errors are returned as
// *validation.RequestValidationError.
func (m *Message) Validate() error {
	if verr := validation.ValidateStruct(m); verr != nil {
		return verr
	}
	if m.Type == ReviewActionDetected && m.Subject == nil {
		return fmt.Errorf("%w: review actions need a subject", ErrInvalidMessage)
	}
	if m.Type == ReviewActionDetected {
		if err := m.Metadata.Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidMessage, err.Error())
		}
	}
	return nil
}
