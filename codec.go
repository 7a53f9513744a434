package tether

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// protocolVersion is the wire version marker. Frames without it are
// treated as unrecognized, whatever else they carry.
const protocolVersion = "1"

// frame is the wire envelope. Exactly three shapes are valid:
//
//	call:         {v, id, method, params?}
//	notification: {v, method, params?}        — id absent, never null
//	reply:        {v, id, result? | error?}   — exactly one of result/error
type frame struct {
	Version string          `json:"v"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// frameKind is the classification of an inbound frame.
type frameKind int

const (
	frameUnrecognized frameKind = iota
	frameCall
	frameNotification
	frameReply
)

var frameKindNames = [...]string{
	frameUnrecognized: "unrecognized",
	frameCall:         "call",
	frameNotification: "notification",
	frameReply:        "reply",
}

func (k frameKind) String() string {
	if int(k) >= 0 && int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return fmt.Sprintf("frameKind(%d)", k)
}

// classifyFrame determines the shape of an inbound frame without fully
// decoding it. Precedence order is part of the protocol contract:
// missing version marker → unrecognized; method without id → notification;
// method with id → call; id with result or error → reply; else unrecognized.
func classifyFrame(data []byte) frameKind {
	var probe struct {
		Version json.RawMessage `json:"v"`
		ID      json.RawMessage `json:"id"`
		Method  json.RawMessage `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return frameUnrecognized
	}
	switch {
	case probe.Version == nil:
		return frameUnrecognized
	case probe.Method != nil && probe.ID == nil:
		return frameNotification
	case probe.Method != nil:
		return frameCall
	case probe.ID != nil && (probe.Result != nil || probe.Error != nil):
		return frameReply
	default:
		return frameUnrecognized
	}
}

// decodeFrame deserializes an inbound frame. Failure is a DecodingError,
// which the receive path recovers from (log and drop), never a crash.
func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DecodingError{Cause: err}
	}
	return &f, nil
}

// decodeReply deserializes and validates a frame already classified as a
// reply. A reply carrying both or neither of result/error is malformed.
func decodeReply(data []byte) (*frame, error) {
	f, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if (f.Result != nil) == (f.Error != nil) {
		return nil, &DecodingError{Cause: fmt.Errorf("reply must carry exactly one of result/error")}
	}
	return f, nil
}

// encodeCall serializes an outbound call frame. id and method are always
// present; params is omitted when nil.
func encodeCall(id, method string, params any) ([]byte, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, &EncodingError{Cause: err}
	}
	return encodeFrame(frame{Version: protocolVersion, ID: rawID, Method: method}, params)
}

// encodeNotification serializes an outbound notification frame. The id
// field is absent entirely, not null.
func encodeNotification(method string, params any) ([]byte, error) {
	return encodeFrame(frame{Version: protocolVersion, Method: method}, params)
}

func encodeFrame(f frame, params any) ([]byte, error) {
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, &EncodingError{Cause: err}
		}
		f.Params = raw
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, &EncodingError{Cause: err}
	}
	return data, nil
}

// idKey returns the correlation key for a raw JSON id. Keeping the exact
// bytes means a string id and an integer id can never collide: the wire
// forms `"7"` and `7` map to distinct keys.
func idKey(raw json.RawMessage) string {
	return string(raw)
}
