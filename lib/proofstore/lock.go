// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sys/unix"
)

// withLock runs fn while holding the exclusive store lock. Each call
// opens its own descriptor, so goroutines sharing a Store contend for
// the lock exactly like separate processes do.
func (s *Store) withLock(ctx context.Context, op string, fn func() error) error {
	file, err := os.OpenFile(s.path(lockFile), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("proofstore: %s: opening lock: %w", op, err)
	}
	defer file.Close()

	descriptor := int(file.Fd())
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.lockInterval
	policy.MaxInterval = 16 * s.lockInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := unix.Flock(descriptor, unix.LOCK_EX|unix.LOCK_NB)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
			return struct{}{}, &StoreConflict{Op: op, Expected: "store lock free", Actual: "held by another writer"}
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("proofstore: %s: flock: %w", op, err))
		}
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(s.lockAttempts)))
	if err != nil {
		if IsRetryable(err) {
			s.logger.Warn("store lock busy", "op", op, "attempts", s.lockAttempts)
		}
		return err
	}
	defer unix.Flock(descriptor, unix.LOCK_UN)

	return fn()
}
