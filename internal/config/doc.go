// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the bigeye configuration.
//
// Precedence is defaults, then a strict YAML file, then BIGEYE_* environment
// variables. The merged result is validated before it is returned.
package config
