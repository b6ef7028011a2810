// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package models defines the entities the WorkTime agent persists and syncs.

Key Components:

  - Subject: the pull request being reviewed (owner/repo#number)
  - TrackedInterval: one continuous span of attention on a subject
  - ActivityEvent: an immutable review action with bounded metadata
  - PendingOperation: a not-yet-confirmed remote mutation
  - DeadLetterRecord: an operation removed from the retry path

All entities are stored as JSON in the embedded store and are reloaded on
process start, so every field that matters after a restart is exported and
tagged.
*/
package models
