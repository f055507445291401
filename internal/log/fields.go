// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Device fields
	FieldDevice    = "device"
	FieldVendor    = "vendor_id"
	FieldProduct   = "product_id"
	FieldSerial    = "serial"
	FieldDevPath   = "dev_path"
	FieldBackend   = "backend"
	FieldErrorKind = "error_kind"

	// Media / stream fields
	FieldFormat     = "format"
	FieldEncoding   = "encoding"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldSeq        = "seq"
	FieldBytes      = "bytes"
	FieldDropped    = "dropped"

	// State fields
	FieldState      = "state"
	FieldOldState   = "old_state"
	FieldNewState   = "new_state"
	FieldTransition = "transition"
)
