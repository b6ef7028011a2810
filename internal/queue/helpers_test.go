// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package queue

import "github.com/goccy/go-json"

func unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
