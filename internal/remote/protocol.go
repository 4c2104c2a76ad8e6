package remote

import (
	"encoding/json"
	stderrors "errors"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/pied/internal/errors"
)

// Message types sent by clients.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSet         = "set"
	TypeGet         = "get"
)

// Message types sent by the server.
const (
	TypeValue = "value"
	TypeAck   = "ack"
)

// Message is the single JSON frame exchanged over the websocket.
//
// ID carries the request id for set/get/ack and the subscription id for
// subscribe/unsubscribe/value.
type Message struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Path  string          `json:"path,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *WireError      `json:"error,omitempty"`
}

// WireError is a coded error carried in an ack.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newID() string {
	return ulid.Make().String()
}

func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	var pErr *errors.PiedError
	if stderrors.As(err, &pErr) {
		return &WireError{Code: string(pErr.Code), Message: pErr.Message}
	}
	return &WireError{Code: string(errors.ErrInternal), Message: err.Error()}
}

func (w *WireError) toError() error {
	if w == nil {
		return nil
	}
	status := 500
	switch errors.ErrorCode(w.Code) {
	case errors.ErrInvalidRequest:
		status = 400
	case errors.ErrNotFound:
		status = 404
	}
	return &errors.PiedError{Code: errors.ErrorCode(w.Code), Status: status, Message: w.Message}
}
