// ABOUTME: Wire types for the rope subordinate process: proposals, changed files, settings
// ABOUTME: Covers the plain line protocol and the id-tagged envelope used for pipelining

package rope

import (
	"bytes"
	"encoding/json"
)

// RefactorType names the transformation a Proposal performs.
type RefactorType string

const (
	RefactorInline             RefactorType = "inline"
	RefactorIntroduceParameter RefactorType = "introduce_parameter"
)

// Known reports whether the type is one this client knows how to present.
func (t RefactorType) Known() bool {
	return t == RefactorInline || t == RefactorIntroduceParameter
}

// ChangedFile is the complete new content of one file, not a diff.
type ChangedFile struct {
	Path        string `json:"path"`
	NewContents string `json:"new_contents"`
}

// Proposal is one refactoring the server can perform at a position.
type Proposal struct {
	Type         RefactorType  `json:"type"`
	ChangedFiles []ChangedFile `json:"changed_files"`
}

// Settings is forwarded to rope's Project as a JSON launch argument.
type Settings struct {
	IgnoredResources []string `json:"ignored_resources,omitempty"`
	SourceFolders    []string `json:"source_folders,omitempty"`
	// ParameterName names parameters made by introduce_parameter proposals.
	ParameterName string `json:"parameter_name,omitempty"`
}

// Protocol selects how replies are matched to requests.
type Protocol string

const (
	// ProtocolPlain is the stock server protocol: bare payloads, replies
	// matched by arrival order, one request on the wire at a time.
	ProtocolPlain Protocol = "plain"
	// ProtocolTagged wraps each request in {"id","params"} and expects the
	// id echoed back, so any number of requests may be outstanding.
	ProtocolTagged Protocol = "tagged"
)

// ParseProtocol accepts "", "plain" and "tagged".
func ParseProtocol(s string) (Protocol, bool) {
	switch Protocol(s) {
	case "", ProtocolPlain:
		return ProtocolPlain, true
	case ProtocolTagged:
		return ProtocolTagged, true
	}
	return "", false
}

// launchConfig is the JSON document passed as the last launch argument.
type launchConfig struct {
	Settings
	Protocol Protocol `json:"protocol,omitempty"`
}

// handshake is the first message written to a fresh server.
type handshake struct{}

// readyMessage is the only acceptable reply to the handshake.
type readyMessage struct {
	Message string `json:"message"`
}

const readyMarker = "ready"

// requestEnvelope wraps a payload in the tagged protocol.
type requestEnvelope struct {
	ID     int64 `json:"id"`
	Params any   `json:"params"`
}

// responseEnvelope is a tagged reply. Error is a plain message string.
type responseEnvelope struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// decodeEnvelope reports whether raw is a tagged reply with a positive id.
func decodeEnvelope(raw json.RawMessage) (responseEnvelope, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return responseEnvelope{}, false
	}
	var env responseEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.ID <= 0 {
		return responseEnvelope{}, false
	}
	return env, true
}

// isFalsy mirrors how the server signals "nothing here": null, false, 0,
// an empty string, or an empty array.
func isFalsy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "false", "0", `""`, "[]":
		return true
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil && len(items) == 0 {
			return true
		}
	}
	return false
}
