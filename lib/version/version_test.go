// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-05-01T09:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-05-01T09:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

func TestFullListsSchemas(t *testing.T) {
	full := Full()
	for _, want := range []string{"Go:", "Schemas: 1.0, 2.0", "current 2.0"} {
		if !strings.Contains(full, want) {
			t.Errorf("Full() = %q, missing %q", full, want)
		}
	}
}
