// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEmitJSON(t *testing.T) {
	var out bytes.Buffer
	quiet := JSONOutput{}
	if done, err := quiet.EmitJSON(&out, map[string]int{"runs": 1}); done || err != nil || out.Len() != 0 {
		t.Fatalf("EmitJSON without --json: done=%v err=%v out=%q", done, err, out.String())
	}

	loud := JSONOutput{OutputJSON: true}
	var runs []string
	if done, err := loud.EmitJSON(&out, runs); !done || err != nil {
		t.Fatalf("EmitJSON: done=%v err=%v", done, err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", out.String())
	}
}

func TestNewLoggerHandlers(t *testing.T) {
	var out bytes.Buffer
	newLogger(&out, false, false).Debug("hidden")
	newLogger(&out, false, false).Info("stored receipt", "seq", 3)
	var record map[string]any
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("non-terminal output is not one JSON record: %v\n%s", err, out.String())
	}
	if record["msg"] != "stored receipt" {
		t.Errorf("record = %v", record)
	}

	out.Reset()
	newLogger(&out, true, true).Debug("lock acquired")
	if !strings.Contains(out.String(), "level=DEBUG") {
		t.Errorf("verbose terminal output = %q", out.String())
	}
}
