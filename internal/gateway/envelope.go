package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Operation discriminators understood by the ledger endpoint.
const (
	OpList     = "list"
	OpFetch    = "fetch"
	OpLogin    = "login"
	OpAdd      = "add"
	OpTransact = "transact"
	OpLogout   = "logout"
)

// CodeOK is the only application status treated as success.
const CodeOK = 200

// Envelope is the uniform response wrapper returned by every operation.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
}

// OK reports whether the ledger accepted the operation.
func (e Envelope) OK() bool {
	return e.Code == CodeOK
}

// Decode unmarshals the info payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Info) == 0 || string(e.Info) == "null" {
		return errors.New("envelope has no info payload")
	}
	return json.Unmarshal(e.Info, v)
}

// Err returns an *ApplicationError for non-200 envelopes and nil otherwise.
func (e Envelope) Err(operation string) error {
	if e.OK() {
		return nil
	}
	return &ApplicationError{Operation: operation, Code: e.Code, Message: e.Message}
}

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("ledger unreachable")

// TransportError means no usable response arrived: connection failure,
// cancelled context, or a body that is not an envelope.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Operation, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ApplicationError is a delivered envelope whose code is not 200.
type ApplicationError struct {
	Operation string
	Code      int
	Message   string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected with code %d", e.Operation, e.Code)
	}
	return fmt.Sprintf("%s rejected with code %d: %s", e.Operation, e.Code, e.Message)
}

// decodeEnvelope parses a response body. The ledger serialises its envelope
// and then serves that text as a JSON document, so a body that decodes to a
// JSON string is decoded once more.
func decodeEnvelope(body []byte) (Envelope, error) {
	doc := bytes.TrimSpace(body)
	if len(doc) > 0 && doc[0] == '"' {
		var inner string
		if err := json.Unmarshal(doc, &inner); err != nil {
			return Envelope{}, fmt.Errorf("decode outer document: %w", err)
		}
		doc = bytes.TrimSpace([]byte(inner))
	}

	var env Envelope
	if err := json.Unmarshal(doc, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
