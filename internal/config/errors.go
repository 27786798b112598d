// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

var (
	// ErrUnknownConfigField marks strict YAML failures caused by keys the Config does not declare.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrMultipleDocuments rejects files with more than one YAML document.
	ErrMultipleDocuments = errors.New("config file contains multiple documents or trailing content")
	// ErrUnsupportedFormat rejects config files that are not YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)
