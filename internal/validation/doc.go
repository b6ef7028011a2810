// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package validation wraps go-playground/validator for the detection message
router and the local HTTP API.

# Custom Tags

  - activity_type: the value is one of the review actions the backend accepts
  - context_id: 1-128 printable characters without whitespace

# Error Envelope

ValidateStruct returns *RequestValidationError. ToAPIError converts it into
the VALIDATION_ERROR envelope used by every 400 response of the local API:

	{"error": {"code": "VALIDATION_ERROR", "message": "number must be greater than 0"}}

Field names in messages are the json names, so clients see the same names
they sent.
*/
package validation
