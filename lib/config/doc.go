// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads a Quill project's configuration.
//
// Configuration is a single YAML file, normally .quill/config.yaml
// inside the project. The QUILL_CONFIG environment variable or the
// --config flag names a different file. There is no search path and no
// per-field environment override: what the file says is what runs.
//
// [Default] supplies every field before the file is read, so a file
// only needs the fields it changes. Unknown keys are errors. [Validate]
// reports every problem at once rather than the first.
//
// Path fields expand ${QUILL_PROJECT} (the directory containing .quill),
// ${HOME}, and ${VAR:-default} after loading.
package config
