package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordSeparator terminates every JSON hub protocol record.
const recordSeparator = 0x1E

// Hub protocol message types handled by the client. Types 2 to 5 (stream
// items, completions, stream invocations and cancellations) answer requests
// this client never sends.
const (
	typeInvocation = 1
	typePing       = 6
	typeClose      = 7
)

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// envelope is an inbound record. Only the fields used by the client are
// decoded.
type envelope struct {
	Type           int               `json:"type"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// invocation is an outbound non-blocking invocation: no invocation id, so
// the server sends no completion.
type invocation struct {
	Type      int    `json:"type"`
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

type ping struct {
	Type int `json:"type"`
}

// CloseError is returned when the server ends the session with a close
// message.
type CloseError struct {
	Message        string
	AllowReconnect bool
}

func (e *CloseError) Error() string {
	if e.Message == "" {
		return "hub closed by server"
	}
	return "hub closed by server: " + e.Message
}

var handshake = handshakeRequest{Protocol: "json", Version: 1}

// encodeRecord marshals v and appends the record separator.
func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding hub record: %w", err)
	}
	return append(data, recordSeparator), nil
}

// splitRecords splits a frame into its records. A frame may carry several
// records; empty segments are dropped.
func splitRecords(frame []byte) [][]byte {
	var records [][]byte
	for _, part := range bytes.Split(frame, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(part)) > 0 {
			records = append(records, part)
		}
	}
	return records
}

func decodeHandshake(record []byte) error {
	var resp handshakeResponse
	if err := json.Unmarshal(record, &resp); err != nil {
		return fmt.Errorf("decoding handshake response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return nil
}
