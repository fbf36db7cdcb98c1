// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source behind every
// timestamp Quill records: run start and end times, receipt issuance,
// audit entries, and key creation.
//
// Production code holds a Clock and calls Now instead of time.Now:
//
//	builder := receipt.NewBuilder(receipt.Config{Clock: clock.Real(), ...})
//
// Tests use Fake, which stands still until Set or Advance is called, so
// that two promotions of the same run at the same fake instant produce
// byte-identical receipts.
package clock
