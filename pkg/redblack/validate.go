package redblack

import "encoding/json"

// IsBlackMsg reports whether obj has the shape of a black envelope: a JSON
// object with non-null msghex, sighex and spkhex members. It is purely
// structural and performs no hex or cryptographic checks.
//
// obj may be a decoded map[string]any, raw JSON ([]byte or json.RawMessage),
// or any value that marshals to a JSON object.
func IsBlackMsg(obj any) bool {
	fields, ok := asObject(obj)
	if !ok {
		return false
	}
	return nonNull(fields, "msghex") && nonNull(fields, "sighex") && nonNull(fields, "spkhex")
}

// IsJSONRPC reports whether obj is a JSON-RPC 2.0 envelope: jsonrpc equal to
// the string "2.0", a non-null id, and at least one non-null member among
// method, error and result. The check is presence based so loosely typed
// peers are accepted; ParseMessage applies the stricter typed rules.
func IsJSONRPC(obj any) bool {
	fields, ok := asObject(obj)
	if !ok {
		return false
	}
	if version, _ := fields["jsonrpc"].(string); version != JSONRPCVersion {
		return false
	}
	if !nonNull(fields, "id") {
		return false
	}
	return nonNull(fields, "method") || nonNull(fields, "error") || nonNull(fields, "result")
}

func asObject(obj any) (map[string]any, bool) {
	var raw []byte
	switch v := obj.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		raw = b
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, fields != nil
}

func nonNull(fields map[string]any, name string) bool {
	v, ok := fields[name]
	return ok && v != nil
}
