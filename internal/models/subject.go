// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package models

import (
	"fmt"
	"regexp"
	"strconv"
)

// Subject identifies a reviewable pull request.
type Subject struct {
	Owner  string `json:"owner" validate:"required,max=100"`
	Repo   string `json:"repo" validate:"required,max=100"`
	Number int    `json:"number" validate:"required,gt=0"`
}

var subjectKeyPattern = regexp.MustCompile(`^([^/\s]+)/([^#\s]+)#(\d+)$`)

// Key returns the canonical owner/repo#number form.
func (s Subject) Key() string {
	return s.Owner + "/" + s.Repo + "#" + strconv.Itoa(s.Number)
}

func (s Subject) String() string {
	return s.Key()
}

// ParseSubjectKey parses the owner/repo#number form produced by Key.
func ParseSubjectKey(key string) (Subject, error) {
	m := subjectKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return Subject{}, fmt.Errorf("invalid subject key %q", key)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return Subject{}, fmt.Errorf("invalid subject number in %q", key)
	}
	return Subject{Owner: m[1], Repo: m[2], Number: n}, nil
}
