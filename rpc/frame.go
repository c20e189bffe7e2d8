package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Frame types.
const (
	FrameCall    = "call"
	FrameReturn  = "return"
	FrameFinish  = "finish"
	FrameRelease = "release"
	FrameAbort   = "abort"
)

// PromisedAnswer names a capability field of a question that may not have
// returned yet.
type PromisedAnswer struct {
	Question uint64 `json:"question"`
	Field    string `json:"field"`
}

// Target addresses a call either at an exported capability or at a
// capability promised by an earlier question. Cap 0 is the bootstrap.
type Target struct {
	Cap     uint64          `json:"cap"`
	Promise *PromisedAnswer `json:"promise,omitempty"`
}

// Frame is the single message envelope exchanged in both directions.
type Frame struct {
	Type     string            `json:"type"`
	Question uint64            `json:"question,omitempty"`
	Target   *Target           `json:"target,omitempty"`
	Method   string            `json:"method,omitempty"`
	Params   json.RawMessage   `json:"params,omitempty"`
	Result   json.RawMessage   `json:"result,omitempty"`
	Caps     map[string]uint64 `json:"caps,omitempty"`
	Cap      uint64            `json:"cap,omitempty"`
	Error    string            `json:"error,omitempty"`
}

const frameSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type":     {"enum": ["call", "return", "finish", "release", "abort"]},
    "question": {"type": "integer", "minimum": 1},
    "method":   {"type": "string", "minLength": 1},
    "cap":      {"type": "integer", "minimum": 1},
    "error":    {"type": "string"},
    "caps": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 1}
    },
    "target": {
      "type": "object",
      "properties": {
        "cap": {"type": "integer", "minimum": 0},
        "promise": {
          "type": "object",
          "required": ["question", "field"],
          "properties": {
            "question": {"type": "integer", "minimum": 1},
            "field":    {"type": "string", "minLength": 1}
          }
        }
      },
      "anyOf": [{"required": ["cap"]}, {"required": ["promise"]}]
    }
  },
  "allOf": [
    {"if": {"properties": {"type": {"const": "call"}}},    "then": {"required": ["question", "target", "method"]}},
    {"if": {"properties": {"type": {"const": "return"}}},  "then": {"required": ["question"]}},
    {"if": {"properties": {"type": {"const": "finish"}}},  "then": {"required": ["question"]}},
    {"if": {"properties": {"type": {"const": "release"}}}, "then": {"required": ["cap"]}}
  ]
}`

var frameSchema = jsonschema.MustCompileString("frame.schema.json", frameSchemaJSON)

// DecodeFrame validates data against the envelope schema and decodes it.
func DecodeFrame(data []byte) (*Frame, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if err := frameSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	f := &Frame{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return f, nil
}

// EncodeFrame marshals f.
func EncodeFrame(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}
