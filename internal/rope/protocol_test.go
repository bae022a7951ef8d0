// ABOUTME: Tests for wire helpers: falsy replies, tagged envelopes, protocol parsing
// ABOUTME: Also checks error sentinels reachable through errors.Is

package rope

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestIsFalsy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{"false", true},
		{"0", true},
		{`""`, true},
		{"[]", true},
		{"[ \n ]", true},
		{" null ", true},
		{`[{"type":"inline","changed_files":[]}]`, false},
		{"true", false},
		{"1", false},
		{`"x"`, false},
		{"{}", false},
	}
	for _, tt := range tests {
		if got := isFalsy(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("isFalsy(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	env, ok := decodeEnvelope(json.RawMessage(`{"id": 3, "result": [1]}`))
	if !ok || env.ID != 3 || string(env.Result) != "[1]" {
		t.Errorf("result envelope = %+v, %v", env, ok)
	}
	env, ok = decodeEnvelope(json.RawMessage(`{"id": 4, "error": "boom"}`))
	if !ok || env.Error != "boom" {
		t.Errorf("error envelope = %+v, %v", env, ok)
	}
	for _, raw := range []string{`{"message": "ready"}`, `[1, 2]`, `{"id": 0}`, `{"id": "x"}`, `null`} {
		if _, ok := decodeEnvelope(json.RawMessage(raw)); ok {
			t.Errorf("decodeEnvelope(%s) accepted a non-envelope", raw)
		}
	}
}

func TestParseProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Protocol
		ok   bool
	}{
		{"", ProtocolPlain, true},
		{"plain", ProtocolPlain, true},
		{"tagged", ProtocolTagged, true},
		{"json-rpc", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseProtocol(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProtocol(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRefactorTypeKnown(t *testing.T) {
	t.Parallel()

	if !RefactorInline.Known() || !RefactorIntroduceParameter.Known() {
		t.Error("built-in refactor types should be known")
	}
	if RefactorType("extract_method").Known() {
		t.Error("extract_method should not be known")
	}
}

func TestErrorSentinels(t *testing.T) {
	t.Parallel()

	code := 3
	tests := []struct {
		err    error
		target error
		text   string
	}{
		{&SpawnError{Command: "python3", Err: errors.New("not found")}, ErrSpawn, `"python3"`},
		{&NotReadyError{Got: `{"message":"x"}`}, ErrNotReady, "not ready"},
		{&ExitError{Code: &code}, ErrProcessTerminated, "exit code 3"},
		{&ExitError{}, ErrProcessTerminated, "signal"},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.target) {
			t.Errorf("%v does not match %v", tt.err, tt.target)
		}
		if !strings.Contains(tt.err.Error(), tt.text) {
			t.Errorf("%q does not mention %q", tt.err.Error(), tt.text)
		}
	}

	long := strings.Repeat("é", 300)
	if msg := (&ProtocolError{Line: long}).Error(); !strings.HasSuffix(msg, `..."`) {
		t.Errorf("long line not truncated: %d bytes", len(msg))
	}
}
