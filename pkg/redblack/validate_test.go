package redblack_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/secmsg/redblack-go/pkg/redblack"
)

func TestIsBlackMsg(t *testing.T) {
	tests := []struct {
		name string
		obj  any
		want bool
	}{
		{"complete", map[string]any{"msghex": "a", "sighex": "b", "spkhex": "c"}, true},
		{"only msghex", map[string]any{"msghex": "a"}, false},
		{"nil", nil, false},
		{"nil map", map[string]any(nil), false},
		{"null member", map[string]any{"msghex": "a", "sighex": nil, "spkhex": "c"}, false},
		{"raw json", json.RawMessage(`{"msghex":"a","sighex":"b","spkhex":"c"}`), true},
		{"raw bytes", []byte(`{"msghex":"a","sighex":"b"}`), false},
		{"raw null", []byte(`null`), false},
		{"raw garbage", []byte(`not json`), false},
		{"struct", redblack.BlackMessage{MsgHex: "a", SigHex: "b", SpkHex: "c"}, true},
		{"nil struct pointer", (*redblack.BlackMessage)(nil), false},
		{"string", "msghex", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redblack.IsBlackMsg(tt.obj))
		})
	}
}

func TestIsJSONRPC(t *testing.T) {
	tests := []struct {
		name string
		obj  any
		want bool
	}{
		{"method", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "x"}, true},
		{"old version", map[string]any{"jsonrpc": "1.0", "id": 1, "method": "x"}, false},
		{"no member", map[string]any{"jsonrpc": "2.0", "id": 1}, false},
		{"nil", nil, false},
		{"null id", map[string]any{"jsonrpc": "2.0", "id": nil, "method": "x"}, false},
		{"missing id", map[string]any{"jsonrpc": "2.0", "result": map[string]any{}}, false},
		{"string id accepted", map[string]any{"jsonrpc": "2.0", "id": "abc", "result": 1}, true},
		{"zero id", map[string]any{"jsonrpc": "2.0", "id": 0, "method": "hello"}, true},
		{"error", map[string]any{"jsonrpc": "2.0", "id": 2, "error": map[string]any{"code": 1}}, true},
		{"several members", map[string]any{"jsonrpc": "2.0", "id": 2, "error": 1, "result": 2}, true},
		{"numeric version", map[string]any{"jsonrpc": 2.0, "id": 1, "method": "x"}, false},
		{"raw json", []byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`), true},
		{"typed message", redblack.NewError(404, "not found", 7), true},
		{"invalid typed message", redblack.Message{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redblack.IsJSONRPC(tt.obj))
		})
	}
}
