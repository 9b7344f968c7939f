// Package jsonrpc provides the JSON-RPC 2.0 message types used on the
// LSP wire: request and response envelopes, error objects with the
// standard codes, and the ID union.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Outgoing is a server-to-client message: a *Response to a client
// request, or a server-initiated *Request (typically a notification).
type Outgoing interface {
	outgoingMessage()
}

func (*Response) outgoingMessage() {}
func (*Request) outgoingMessage()  {}

// Request is the JSON-RPC request envelope. Inbound, it is the product
// of the first decoding pass: the ID and method are extracted while the
// params stay raw so a malformed params object can still be answered
// with a correlated error. A nil ID marks a notification.
//
// A decoded envelope with an empty Method is a response from the
// client, which this server only observes to discard.
type Request struct {
	JSONRPC Version         `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. An absent jsonrpc field
// is rejected; Version itself rejects a different one.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	aux := struct {
		JSONRPC *Version `json:"jsonrpc"`
		*plain
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.JSONRPC == nil {
		return fmt.Errorf("missing jsonrpc version")
	}
	return nil
}

// NewNotification builds an outgoing notification, marshalling params.
// A nil params leaves the field absent.
func NewNotification(method string, params any) (*Request, error) {
	req := &Request{Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = data
	}
	return req, nil
}

// Response is the JSON-RPC response envelope. Exactly one of Result and
// Error is set. The jsonrpc field serializes first.
type Response struct {
	JSONRPC Version         `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// NewResponse builds a success response, marshalling result. LSP
// expects "result": null when a handler produces nothing, so a nil
// result becomes the JSON null.
func NewResponse(id ID, result any) *Response {
	resp := &Response{ID: id}
	if result == nil {
		resp.Result = json.RawMessage("null")
		return resp
	}
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrInternal(fmt.Sprintf("marshal result: %v", err)))
	}
	resp.Result = data
	return resp
}

// NewErrorResponse builds an error response. Pass the zero ID for the
// null-ID responses the server synthesizes for undecodable frames.
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{ID: id, Error: err}
}
