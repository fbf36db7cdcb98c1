// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cenkalti/backoff/v5"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/digest"
)

// AuditReport is the outcome of VerifyAuditChain.
type AuditReport struct {
	auditchain.Report

	// TornBytes is the length of a trailing partial line, or zero.
	TornBytes int `json:"torn_bytes"`
}

// Intact reports whether every entry verified and the log ends on a
// line boundary.
func (r AuditReport) Intact() bool { return r.Report.Intact() && r.TornBytes == 0 }

// AppendAudit appends an entry to the audit log. The next entry is
// computed from the tail read without the lock; under the lock the
// tail is read again, and if another writer appended in between the
// attempt fails with *StoreConflict and is retried against the new
// tail.
func (s *Store) AppendAudit(ctx context.Context, action auditchain.Action, subject string, object digest.Digest) (auditchain.Entry, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.lockInterval
	policy.MaxInterval = 16 * s.lockInterval

	return backoff.Retry(ctx, func() (auditchain.Entry, error) {
		tail, err := s.auditTail()
		if err != nil {
			if IsRetryable(err) {
				return auditchain.Entry{}, err
			}
			return auditchain.Entry{}, backoff.Permanent(err)
		}
		entry, err := auditchain.Next(tail, s.clock.Now(), action, subject, object)
		if err != nil {
			return auditchain.Entry{}, backoff.Permanent(fmt.Errorf("proofstore: %w", err))
		}
		if err := s.commitAudit(ctx, tail, entry); err != nil {
			if IsRetryable(err) {
				return auditchain.Entry{}, err
			}
			return auditchain.Entry{}, backoff.Permanent(err)
		}
		return entry, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(s.lockAttempts)))
}

// commitAudit writes entry if the chain tail is still expected.
func (s *Store) commitAudit(ctx context.Context, expected *auditchain.Entry, entry auditchain.Entry) error {
	return s.withLock(ctx, "append audit", func() error {
		lines, torn, err := s.readAudit()
		if err != nil {
			return err
		}
		if len(torn) > 0 {
			return fmt.Errorf("%w (%d bytes); run audit repair", ErrTornAuditLog, len(torn))
		}
		actual, err := lastEntry(lines)
		if err != nil {
			return err
		}
		if !sameTail(expected, actual) {
			return &StoreConflict{Op: "append audit", Expected: describeTail(expected), Actual: describeTail(actual)}
		}
		if err := s.writeAuditLine(entry); err != nil {
			return err
		}
		s.logger.Debug("appended audit entry", "seq", entry.Seq, "action", string(entry.Action))
		return nil
	})
}

// pendingAudit is the entry a locked write will append. Recorded is
// set when the log already holds an entry with the same action and
// object, which happens when an earlier attempt got as far as the log.
type pendingAudit struct {
	entry    auditchain.Entry
	recorded bool
}

// planAudit computes the next entry for action against the current
// tail. The caller holds the store lock, so the tail cannot move
// before the entry is written. A torn log fails here, before anything
// is published.
func (s *Store) planAudit(action auditchain.Action, subject string, object digest.Digest) (pendingAudit, error) {
	lines, torn, err := s.readAudit()
	if err != nil {
		return pendingAudit{}, err
	}
	if len(torn) > 0 {
		return pendingAudit{}, fmt.Errorf("%w (%d bytes); run audit repair", ErrTornAuditLog, len(torn))
	}
	objectText := []byte(object.String())
	for index, line := range lines {
		if !bytes.Contains(line, objectText) {
			continue
		}
		existing, err := auditchain.ParseLine(line)
		if err != nil {
			return pendingAudit{}, fmt.Errorf("proofstore: audit log line %d: %w", index+1, err)
		}
		if existing.Action == action && existing.Object.Equal(object) {
			return pendingAudit{entry: existing, recorded: true}, nil
		}
	}
	tail, err := lastEntry(lines)
	if err != nil {
		return pendingAudit{}, err
	}
	entry, err := auditchain.Next(tail, s.clock.Now(), action, subject, object)
	if err != nil {
		return pendingAudit{}, fmt.Errorf("proofstore: %w", err)
	}
	return pendingAudit{entry: entry}, nil
}

// storeRecord publishes data at path, updates the index, and appends
// the audit entry for action as one unit. The caller holds the store
// lock. The index change is a savepoint that commits only after the
// audit line is written, and a file this call created is removed
// again if the line was not written, so a failed call leaves nothing
// visible. A retry after a partial failure finishes the job: the file
// and index writes are idempotent and the entry is appended only if
// the log does not already hold it.
//
// Errors from publish are returned unwrapped so callers can test for
// atomicfile.ErrExists.
func (s *Store) storeRecord(ctx context.Context, path string, data []byte, index func(*sqlite.Conn) error,
	action auditchain.Action, subject string, object digest.Digest) (entry auditchain.Entry, appended bool, err error) {
	pending, err := s.planAudit(action, subject, object)
	if err != nil {
		return auditchain.Entry{}, false, err
	}
	created, err := s.publish(path, data)
	if err != nil {
		return auditchain.Entry{}, false, err
	}

	written := false
	err = s.index.With(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Save(conn)(&err)
		if err := index(conn); err != nil {
			return err
		}
		if pending.recorded {
			return nil
		}
		if err := s.writeAuditLine(pending.entry); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		if created && !written {
			if removeErr := os.Remove(path); removeErr != nil {
				s.logger.Error("removing unrecorded file", "path", path, "error", removeErr)
			}
		}
		return auditchain.Entry{}, false, err
	}
	return pending.entry, !pending.recorded, nil
}

// AuditEntries returns every complete entry in log order. If the log
// ends in a partial line the complete entries are returned together
// with an error wrapping ErrTornAuditLog.
func (s *Store) AuditEntries() ([]auditchain.Entry, error) {
	lines, torn, err := s.readAudit()
	if err != nil {
		return nil, err
	}
	entries := make([]auditchain.Entry, 0, len(lines))
	for index, line := range lines {
		entry, err := auditchain.ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("proofstore: audit line %d: %w", index+1, err)
		}
		entries = append(entries, entry)
	}
	if len(torn) > 0 {
		return entries, fmt.Errorf("%w (%d bytes)", ErrTornAuditLog, len(torn))
	}
	return entries, nil
}

// VerifyAuditChain recomputes every entry of the log. Unparsable lines
// count as broken entries.
func (s *Store) VerifyAuditChain() (AuditReport, error) {
	lines, torn, err := s.readAudit()
	if err != nil {
		return AuditReport{}, err
	}
	entries := make([]auditchain.Entry, len(lines))
	unparsable := make(map[int]string)
	for index, line := range lines {
		entry, err := auditchain.ParseLine(line)
		if err != nil {
			unparsable[index] = err.Error()
			continue
		}
		entries[index] = entry
	}

	report := AuditReport{Report: auditchain.Verify(entries), TornBytes: len(torn)}
	for position, broken := range report.Broken {
		if reason, ok := unparsable[broken.Index]; ok {
			report.Broken[position].Reason = reason
		}
	}
	if !report.Intact() {
		s.logger.Warn("audit chain broken",
			"entries", report.Entries,
			"first_broken", report.FirstBroken,
			"broken", len(report.Broken),
			"torn_bytes", report.TornBytes,
		)
	}
	return report, nil
}

// RepairAuditLog truncates a trailing partial line and returns the
// number of bytes removed. Complete lines are never touched, even if
// they fail verification.
func (s *Store) RepairAuditLog(ctx context.Context) (int, error) {
	removed := 0
	err := s.withLock(ctx, "repair audit", func() error {
		lines, torn, err := s.readAudit()
		if err != nil || len(torn) == 0 {
			return err
		}
		keep := 0
		for _, line := range lines {
			keep += len(line)
		}
		file, err := os.OpenFile(s.path(auditFile), os.O_WRONLY, 0)
		if err != nil {
			return fmt.Errorf("proofstore: opening audit log: %w", err)
		}
		defer file.Close()
		if err := file.Truncate(int64(keep)); err != nil {
			return fmt.Errorf("proofstore: truncating audit log: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("proofstore: syncing audit log: %w", err)
		}
		removed = len(torn)
		s.logger.Warn("removed partial audit line", "bytes", removed, "entries", len(lines))
		return nil
	})
	return removed, err
}

// auditTail reads the last entry without the lock. A partial line may
// be another writer's append in progress, so it is reported as a
// conflict; commitAudit makes the authoritative check.
func (s *Store) auditTail() (*auditchain.Entry, error) {
	lines, torn, err := s.readAudit()
	if err != nil {
		return nil, err
	}
	if len(torn) > 0 {
		return nil, &StoreConflict{Op: "append audit", Expected: "complete audit log", Actual: "partial trailing line"}
	}
	return lastEntry(lines)
}

// readAudit splits audit.log into complete lines, each including its
// newline, and a trailing partial line.
func (s *Store) readAudit() (lines [][]byte, torn []byte, err error) {
	data, err := os.ReadFile(s.path(auditFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("proofstore: reading audit log: %w", err)
	}
	for len(data) > 0 {
		end := bytes.IndexByte(data, '\n')
		if end < 0 {
			return lines, data, nil
		}
		lines = append(lines, data[:end+1])
		data = data[end+1:]
	}
	return lines, nil, nil
}

func (s *Store) writeAuditLine(entry auditchain.Entry) error {
	line, err := entry.MarshalLine()
	if err != nil {
		return fmt.Errorf("proofstore: %w", err)
	}
	path := s.path(auditFile)
	_, statErr := os.Stat(path)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("proofstore: opening audit log: %w", err)
	}
	// One write call per line. O_APPEND positions it at the end.
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("proofstore: appending audit entry %d: %w", entry.Seq, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("proofstore: syncing audit log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("proofstore: closing audit log: %w", err)
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		return atomicfile.SyncDir(s.root)
	}
	return nil
}

func lastEntry(lines [][]byte) (*auditchain.Entry, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	entry, err := auditchain.ParseLine(lines[len(lines)-1])
	if err != nil {
		return nil, fmt.Errorf("proofstore: audit log tail (line %d): %w", len(lines), err)
	}
	return &entry, nil
}

func sameTail(expected, actual *auditchain.Entry) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	return expected.Seq == actual.Seq && expected.Hash.Equal(actual.Hash)
}

func describeTail(tail *auditchain.Entry) string {
	if tail == nil {
		return "empty log"
	}
	return fmt.Sprintf("tail seq %d (%s)", tail.Seq, tail.Hash)
}
