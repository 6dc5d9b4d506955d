// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleReport is a representative internal state record using cbor
// struct tags (the convention for purely-internal types).
type sampleReport struct {
	State    string `cbor:"state"`
	Display  string `cbor:"display,omitempty"`
	ExitCode int    `cbor:"exit_code"`
}

// sampleDualRecord uses json struct tags (the convention for types
// that serve both JSON and CBOR, relying on fxamacker's fallback).
type sampleDualRecord struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleReport{
		State:    "app-launched",
		Display:  ":99",
		ExitCode: 0,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleReport
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	report := sampleReport{
		State:    "terminated",
		Display:  ":99",
		ExitCode: 137,
	}

	first, err := Marshal(report)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}

	second, err := Marshal(report)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestJSONTagFallback(t *testing.T) {
	// Types with json tags (no cbor tags) should encode/decode
	// correctly through our modes, using json tag names as CBOR
	// map keys.
	original := sampleDualRecord{Version: 3, Name: "session"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleDualRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	// A zero-value omitempty field should not appear in output.
	withDisplay := sampleReport{State: "ready", Display: ":99", ExitCode: 0}
	withoutDisplay := sampleReport{State: "ready", ExitCode: 0}

	dataWith, err := Marshal(withDisplay)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutDisplay)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the display field should be shorter
	// because the omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var report sampleReport
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &report)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A newer writer may add fields; older readers must not choke.
	type extended struct {
		State    string `cbor:"state"`
		Display  string `cbor:"display,omitempty"`
		ExitCode int    `cbor:"exit_code"`
		Extra    string `cbor:"extra"`
	}

	data, err := Marshal(extended{State: "ready", ExitCode: 0, Extra: "future"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleReport
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.State != "ready" {
		t.Errorf("State = %q, want %q", decoded.State, "ready")
	}
}
