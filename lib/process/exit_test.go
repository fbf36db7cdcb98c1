// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

type coded struct{ code int }

func (c coded) Error() string { return fmt.Sprintf("coded %d", c.code) }
func (c coded) ExitCode() int { return c.code }

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("disk full"), 1},
		{"coded", coded{4}, 4},
		{"wrapped coded", fmt.Errorf("promote: %w", coded{3}), 3},
		{"interrupted", fmt.Errorf("capture: %w", context.Canceled), StatusInterrupted},
	}
	for _, test := range tests {
		if got := Status(test.err); got != test.want {
			t.Errorf("%s: Status = %d, want %d", test.name, got, test.want)
		}
	}
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	Report(&out, errors.New("no receipt for run 8c3f"))
	if out.String() != "error: no receipt for run 8c3f\n" {
		t.Errorf("Report wrote %q", out.String())
	}
}
