// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	// Now returns the current time. Implementations return UTC.
	Now() time.Time
}

// Real returns a Clock backed by time.Now, truncated to UTC.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
