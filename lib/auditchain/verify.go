// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package auditchain

import (
	"fmt"
	"strings"

	"github.com/quillproof/quill/lib/digest"
)

// Break describes one entry that failed verification.
type Break struct {
	Index  int    `json:"index"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
}

// Report is the outcome of Verify.
type Report struct {
	Entries int `json:"entries"`

	// FirstBroken is the index of the first failing entry, or -1.
	FirstBroken int `json:"first_broken"`

	// Broken lists every failing entry in order.
	Broken []Break `json:"broken"`
}

// Intact reports whether every entry verified.
func (r Report) Intact() bool { return len(r.Broken) == 0 }

// Verify recomputes the chain over entries, which must be in log order.
func Verify(entries []Entry) Report {
	report := Report{Entries: len(entries), FirstBroken: -1, Broken: []Break{}}
	expectedPrev := digest.Seed

	for index, entry := range entries {
		var problems []string
		if entry.Seq != uint64(index) {
			problems = append(problems, fmt.Sprintf("sequence %d at position %d", entry.Seq, index))
		}
		if !entry.Action.Valid() {
			problems = append(problems, fmt.Sprintf("unknown action %q", entry.Action))
		}
		if !entry.Prev.Equal(expectedPrev) {
			problems = append(problems, "prev does not link to the recomputed predecessor")
		}

		// Recompute against the expected predecessor so that one
		// altered entry invalidates everything after it.
		linked := entry
		linked.Prev = expectedPrev
		recomputed, err := linked.ComputeHash()
		if err != nil {
			problems = append(problems, err.Error())
		} else if !recomputed.Equal(entry.Hash) {
			problems = append(problems, "hash does not match recomputation")
		}

		if len(problems) > 0 {
			if report.FirstBroken < 0 {
				report.FirstBroken = index
			}
			report.Broken = append(report.Broken, Break{
				Index:  index,
				Seq:    entry.Seq,
				Reason: strings.Join(problems, "; "),
			})
		}
		expectedPrev = recomputed
	}
	return report
}
