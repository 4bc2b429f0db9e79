package redblack

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the only protocol version accepted on either side.
	JSONRPCVersion = "2.0"

	// MethodHello is the handshake method announced by a service.
	MethodHello = "hello"

	// HelloID is the id carried by every hello.
	HelloID int64 = 0
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Kind discriminates the four red message shapes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindHello
	KindRequest
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return "invalid"
	}
}

// RPCError is the error member of an error response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is a red (plaintext) JSON-RPC 2.0 message. Kind selects which of
// the remaining fields are meaningful:
//
//	KindHello, KindRequest: Method, Params, ID
//	KindResponse:           Result, ID
//	KindError:              Error, ID
//
// Values are built with NewHello, NewRequest, NewResponse and NewError, or
// decoded with ParseMessage.
type Message struct {
	Kind   Kind
	ID     int64
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *RPCError
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

var (
	emptyArray  = json.RawMessage(`[]`)
	emptyObject = json.RawMessage(`{}`)
)

// NewHello returns the handshake message announcing a session public key.
func NewHello(sessionPublicKey string) Message {
	params, _ := json.Marshal([]string{sessionPublicKey})
	return Message{
		Kind:   KindHello,
		ID:     HelloID,
		Method: MethodHello,
		Params: params,
	}
}

// NewRequest returns a request for method with the given positional params.
func NewRequest(id int64, method string, params ...any) (Message, error) {
	const op = "NewRequest"
	if method == "" || method == MethodHello {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "method %q is reserved or empty", method)
	}
	if params == nil {
		params = []any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, errorf(op, ErrSerialization, "params: %v", err)
	}
	return Message{
		Kind:   KindRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse returns a successful response to request id. result must
// encode as a JSON object; nil becomes {}.
func NewResponse(id int64, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, errorf("NewResponse", ErrSerialization, "result: %v", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		raw = append(json.RawMessage(nil), emptyObject...)
	}
	if !isObject(raw) {
		return Message{}, errorf("NewResponse", ErrInvalidProtocolEnvelope, "result must be a JSON object")
	}
	return Message{
		Kind:   KindResponse,
		ID:     id,
		Result: raw,
	}, nil
}

// NewError returns an error response to request id.
func NewError(code int, message string, id int64) Message {
	return Message{
		Kind:  KindError,
		ID:    id,
		Error: &RPCError{Code: code, Message: message},
	}
}

// HelloKey returns the session public key carried by a hello. The key is
// checked to be a valid curve point.
func (m Message) HelloKey() (string, error) {
	const op = "HelloKey"
	if m.Kind != KindHello {
		return "", errorf(op, ErrInvalidProtocolEnvelope, "%s is not a hello", m.Kind)
	}
	key, err := helloParam(m.Params)
	if err != nil {
		return "", errorf(op, ErrInvalidProtocolEnvelope, "%v", err)
	}
	if _, err := parsePublicKey(op, key); err != nil {
		return "", err
	}
	return key, nil
}

// MarshalJSON encodes the message according to its Kind.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{JSONRPC: JSONRPCVersion, ID: m.ID}
	switch m.Kind {
	case KindHello:
		if m.ID != HelloID {
			return nil, errorf("MarshalJSON", ErrInvalidProtocolEnvelope, "hello id must be %d", HelloID)
		}
		w.Method = MethodHello
		w.Params = m.Params
	case KindRequest:
		if m.Method == "" {
			return nil, errorf("MarshalJSON", ErrInvalidProtocolEnvelope, "request without method")
		}
		w.Method = m.Method
		w.Params = m.Params
		if len(w.Params) == 0 {
			w.Params = emptyArray
		}
	case KindResponse:
		w.Result = m.Result
		if len(w.Result) == 0 || bytes.Equal(w.Result, []byte("null")) {
			w.Result = emptyObject
		}
		if !isObject(w.Result) {
			return nil, errorf("MarshalJSON", ErrInvalidProtocolEnvelope, "result must be a JSON object")
		}
	case KindError:
		if m.Error == nil {
			return nil, errorf("MarshalJSON", ErrInvalidProtocolEnvelope, "error response without error")
		}
		w.Error = m.Error
	default:
		return nil, errorf("MarshalJSON", ErrInvalidProtocolEnvelope, "unknown kind %d", m.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a message with ParseMessage.
func (m *Message) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMessage(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMessage decodes a red message. Invalid JSON fails with
// ErrDeserialization; anything that is not exactly one of the four kinds
// fails with ErrInvalidProtocolEnvelope. Unlike IsJSONRPC, exactly one of
// method, result and error must be present, and id must be an integer.
func ParseMessage(data []byte) (Message, error) {
	const op = "ParseMessage"

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, errorf(op, ErrDeserialization, "%v", err)
	}
	if fields == nil {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "not an object")
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != JSONRPCVersion {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "jsonrpc must be %q", JSONRPCVersion)
	}

	if !present(fields, "id") {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "missing id")
	}
	var id int64
	if err := json.Unmarshal(fields["id"], &id); err != nil {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "id must be an integer")
	}

	members := 0
	for _, name := range []string{"method", "result", "error"} {
		if present(fields, name) {
			members++
		}
	}
	if members != 1 {
		return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "exactly one of method, result, error is required, got %d", members)
	}

	switch {
	case present(fields, "method"):
		var method string
		if err := json.Unmarshal(fields["method"], &method); err != nil || method == "" {
			return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "method must be a non-empty string")
		}
		params := fields["params"]
		if present(fields, "params") && !isArray(params) {
			return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "params must be an array")
		}
		if !present(fields, "params") {
			params = emptyArray
		}
		msg := Message{Kind: KindRequest, ID: id, Method: method, Params: clone(params)}
		if method == MethodHello {
			if id != HelloID {
				return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "hello id must be %d", HelloID)
			}
			if _, err := helloParam(params); err != nil {
				return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "%v", err)
			}
			msg.Kind = KindHello
		}
		return msg, nil

	case present(fields, "result"):
		if !isObject(fields["result"]) {
			return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "result must be an object")
		}
		return Message{Kind: KindResponse, ID: id, Result: clone(fields["result"])}, nil

	default:
		var rpcErr RPCError
		if err := json.Unmarshal(fields["error"], &rpcErr); err != nil {
			return Message{}, errorf(op, ErrInvalidProtocolEnvelope, "error member: %v", err)
		}
		return Message{Kind: KindError, ID: id, Error: &rpcErr}, nil
	}
}

func helloParam(params json.RawMessage) (string, error) {
	var keys []string
	if err := json.Unmarshal(params, &keys); err != nil || len(keys) != 1 || keys[0] == "" {
		return "", fmt.Errorf("hello params must hold exactly one session key")
	}
	return keys[0], nil
}

func present(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func clone(raw json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), raw...)
}
