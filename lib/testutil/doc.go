// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared fixtures for Quill package tests.
//
// [Keyring] returns an initialized keyring in a temporary directory.
// [ScenarioRun] returns the reference run used across the receipt,
// verification, and store tests: one input "data.csv", one output
// "model.bin", and the environment {"tool": "x@1.0"}. [Clock] returns a
// fake clock at a fixed instant so receipts built in tests are
// reproducible.
//
// [RequireReceive] wraps the select-with-timeout pattern for tests that
// collect results from goroutines.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
