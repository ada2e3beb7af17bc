package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Request is an incoming call or notification. Notifications carry no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult returns a successful response to the request with the given ID.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      normalizeID(id),
		Result:  result,
	}
}

// NewErrorResponse returns a failed response to the request with the given ID.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      normalizeID(id),
		Error:   err,
	}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
