// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var _ Clock = (*FakeClock)(nil)
var _ Clock = Real()

func TestFakeClockStandsStill(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)
	if !fake.Now().Equal(start) || !fake.Now().Equal(fake.Now()) {
		t.Fatalf("Now() = %v, want %v on every call", fake.Now(), start)
	}
}

func TestFakeClockSetAndAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fake.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !fake.Now().Equal(want) {
		t.Errorf("after Advance: %v, want %v", fake.Now(), want)
	}

	fake.Advance(-time.Hour)
	if want := start.Add(90*time.Second - time.Hour); !fake.Now().Equal(want) {
		t.Errorf("after negative Advance: %v, want %v", fake.Now(), want)
	}

	later := time.Date(2027, 1, 1, 0, 0, 0, 5, time.FixedZone("X", 3600))
	fake.Set(later)
	if !fake.Now().Equal(later) || fake.Now().Location() != time.UTC {
		t.Errorf("after Set: %v, want %v in UTC", fake.Now(), later)
	}
}

func TestRealClockIsUTC(t *testing.T) {
	if location := Real().Now().Location(); location != time.UTC {
		t.Errorf("Real().Now() location = %v, want UTC", location)
	}
}

func TestFakeClockConcurrentAccess(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	var group sync.WaitGroup
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			for range 100 {
				fake.Advance(time.Millisecond)
				_ = fake.Now()
			}
		}()
	}
	group.Wait()
	if want := time.Unix(0, 0).Add(800 * time.Millisecond).UTC(); !fake.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", fake.Now(), want)
	}
}
