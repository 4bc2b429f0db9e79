package session_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secmsg/redblack-go/pkg/redblack"
	"github.com/secmsg/redblack-go/pkg/redblack/logging"
	"github.com/secmsg/redblack-go/pkg/redblack/metrics"
	"github.com/secmsg/redblack-go/pkg/redblack/mocknet"
	"github.com/secmsg/redblack-go/pkg/redblack/session"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustKeyPair(t *testing.T) redblack.KeyPair {
	t.Helper()
	kp, err := redblack.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func peerRejections(role session.Role) float64 {
	return testutil.ToFloat64(metrics.SecurityFailures.WithLabelValues(role.String(), metrics.PeerRejected))
}

// establish runs Accept and Connect concurrently over a fresh pipe.
func establish(t *testing.T, ctx context.Context, identity redblack.KeyPair, serviceOpts, clientOpts []session.Option) (*session.Session, *session.Session, *mocknet.Endpoint, *mocknet.Endpoint) {
	t.Helper()
	clientConn, serviceConn := mocknet.Pipe()

	var (
		wg      sync.WaitGroup
		service *session.Session
		svcErr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		service, svcErr = session.Accept(ctx, serviceConn, serviceOpts...)
	}()

	client, err := session.Connect(ctx, clientConn, identity, clientOpts...)
	wg.Wait()
	require.NoError(t, svcErr)
	require.NoError(t, err)
	return service, client, serviceConn, clientConn
}

func TestHandshake(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)

	service, client, _, _ := establish(t, ctx, identity, nil, nil)

	assert.Equal(t, session.RoleService, service.Role())
	assert.Equal(t, session.RoleClient, client.Role())
	assert.Equal(t, service.LocalKey(), client.PeerKey())
	assert.Equal(t, identity.PublicKey, client.LocalKey())
	assert.Empty(t, service.PeerKey())
	assert.NotEqual(t, service.ID(), client.ID())
}

func TestHelloFrameOnWire(t *testing.T) {
	ctx := testContext(t)
	clientConn, serviceConn := mocknet.Pipe()

	service, err := session.Accept(ctx, serviceConn)
	require.NoError(t, err)

	frame, err := clientConn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","method":"hello","params":["`+service.LocalKey()+`"],"id":0}`,
		string(frame))
}

func TestRequestResponse(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	service, client, _, _ := establish(t, ctx, identity, nil, nil)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- service.Serve(ctx, func(ctx context.Context, req redblack.Message) (any, error) {
			switch req.Method {
			case "doSomething":
				var params []any
				if err := json.Unmarshal(req.Params, &params); err != nil {
					return nil, &redblack.RPCError{Code: redblack.CodeInvalidParams, Message: err.Error()}
				}
				return map[string]any{"ok": true, "echo": params}, nil
			case "explode":
				return nil, errors.New("boom")
			case "scalar":
				return 5, nil
			default:
				return nil, &redblack.RPCError{Code: redblack.CodeMethodNotFound, Message: "not found"}
			}
		})
	}()

	resp, err := client.Call(ctx, "doSomething", "x", 1)
	require.NoError(t, err)
	assert.Equal(t, redblack.KindResponse, resp.Kind)
	assert.Equal(t, int64(1), resp.ID)
	assert.JSONEq(t, `{"ok":true,"echo":["x",1]}`, string(resp.Result))

	assert.Equal(t, identity.PublicKey, service.PeerKey())

	resp, err = client.Call(ctx, "missing")
	var rpcErr *redblack.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, redblack.CodeMethodNotFound, rpcErr.Code)
	assert.Equal(t, redblack.KindError, resp.Kind)
	assert.Equal(t, int64(2), resp.ID)

	_, err = client.Call(ctx, "explode")
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, redblack.CodeInternalError, rpcErr.Code)
	assert.Equal(t, "internal error", rpcErr.Message)

	_, err = client.Call(ctx, "scalar")
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, redblack.CodeInternalError, rpcErr.Code)

	require.NoError(t, client.Close())
	assert.Error(t, <-serveErr)
}

func TestServiceRejectsSecondSigner(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	service, client, _, clientConn := establish(t, ctx, identity, nil, nil)

	req, err := redblack.NewRequest(1, "first")
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, req))
	_, err = service.Receive(ctx)
	require.NoError(t, err)

	intruder := mustKeyPair(t)
	env, err := redblack.RedToBlack(intruder.PrivateKey, service.LocalKey(), req)
	require.NoError(t, err)
	frame, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, clientConn.WriteFrame(ctx, frame))

	rejected := peerRejections(session.RoleService)
	_, err = service.Receive(ctx)
	assert.ErrorIs(t, err, session.ErrPeerRejected)
	assert.Equal(t, identity.PublicKey, service.PeerKey())
	assert.Equal(t, rejected+1, peerRejections(session.RoleService))
}

func TestForgedFirstEnvelopeDoesNotBindPeer(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	service, client, _, clientConn := establish(t, ctx, identity, nil, nil)

	forger := mustKeyPair(t)
	req, err := redblack.NewRequest(1, "m")
	require.NoError(t, err)
	env, err := redblack.RedToBlack(forger.PrivateKey, service.LocalKey(), req)
	require.NoError(t, err)
	env.SpkHex = identity.PublicKey
	frame, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, clientConn.WriteFrame(ctx, frame))

	_, err = service.Receive(ctx)
	require.ErrorIs(t, err, redblack.ErrSignatureVerification)
	assert.True(t, redblack.IsSecurityFailure(err))
	assert.Empty(t, service.PeerKey())

	require.NoError(t, client.Send(ctx, req))
	_, err = service.Receive(ctx)
	require.NoError(t, err)
}

func TestPinnedPeerKey(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	stranger := mustKeyPair(t)

	service, client, _, _ := establish(t, ctx, identity, []session.Option{session.WithPeerKey(stranger.PublicKey)}, nil)

	req, err := redblack.NewRequest(1, "m")
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, req))

	_, err = service.Receive(ctx)
	assert.ErrorIs(t, err, session.ErrPeerRejected)
}

func TestAcceptPeerCallback(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)

	var seen []string
	accept := func(pub string) bool {
		seen = append(seen, pub)
		return false
	}
	service, client, _, _ := establish(t, ctx, identity, []session.Option{session.WithAcceptPeer(accept)}, nil)

	req, err := redblack.NewRequest(1, "m")
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, req))

	rejected := peerRejections(session.RoleService)
	_, err = service.Receive(ctx)
	assert.ErrorIs(t, err, session.ErrPeerRejected)
	assert.Equal(t, []string{identity.PublicKey}, seen)
	assert.Equal(t, rejected+1, peerRejections(session.RoleService))

	// Without a bound peer the check runs again for the next envelope.
	require.NoError(t, client.Send(ctx, req))
	_, err = service.Receive(ctx)
	assert.ErrorIs(t, err, session.ErrPeerRejected)
	assert.Len(t, seen, 2)
}

func TestServiceSendBeforePeer(t *testing.T) {
	ctx := testContext(t)
	service, _, _, _ := establish(t, ctx, mustKeyPair(t), nil, nil)

	err := service.Send(ctx, redblack.NewError(1, "x", 1))
	assert.ErrorIs(t, err, session.ErrNoPeer)
}

func TestConnectRejectsNonHello(t *testing.T) {
	tests := map[string]string{
		"black envelope": `{"msghex":"aa","sighex":"bb","spkhex":"cc"}`,
		"request":        `{"jsonrpc":"2.0","method":"other","params":[],"id":1}`,
		"bad key":        `{"jsonrpc":"2.0","method":"hello","params":["zz"],"id":0}`,
		"nonzero id":     `{"jsonrpc":"2.0","method":"hello","params":["02` + strings.Repeat("ab", 32) + `"],"id":42}`,
		"garbage":        `not json`,
	}
	for name, frame := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := testContext(t)
			clientConn, serviceConn := mocknet.Pipe()
			require.NoError(t, serviceConn.WriteFrame(ctx, []byte(frame)))

			_, err := session.Connect(ctx, clientConn, mustKeyPair(t))
			assert.ErrorIs(t, err, session.ErrNotHello)
		})
	}
}

func TestConnectRejectsBadIdentity(t *testing.T) {
	ctx := testContext(t)
	clientConn, _ := mocknet.Pipe()
	_, err := session.Connect(ctx, clientConn, redblack.KeyPair{PrivateKey: "00"})
	assert.ErrorIs(t, err, redblack.ErrKeyFormat)
}

func TestClientRejectsResponseFromOtherKey(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	_, client, serviceConn, _ := establish(t, ctx, identity, nil, nil)

	impostor := mustKeyPair(t)
	resp, err := redblack.NewResponse(1, map[string]bool{"ok": true})
	require.NoError(t, err)
	env, err := redblack.RedToBlack(impostor.PrivateKey, identity.PublicKey, resp)
	require.NoError(t, err)
	frame, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, serviceConn.WriteFrame(ctx, frame))

	_, err = client.Receive(ctx)
	assert.ErrorIs(t, err, session.ErrPeerRejected)
}

func TestCallIDMismatch(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	service, client, _, _ := establish(t, ctx, identity, nil, nil)

	go func() {
		req, err := service.Receive(ctx)
		if err != nil {
			return
		}
		_ = service.Reply(ctx, req.ID+100, map[string]bool{"ok": true})
	}()

	_, err := client.Call(ctx, "m")
	assert.ErrorIs(t, err, session.ErrIDMismatch)
}

func TestServeAnswersNonRequest(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)
	service, client, _, _ := establish(t, ctx, identity, nil, nil)

	go func() {
		_ = service.Serve(ctx, func(context.Context, redblack.Message) (any, error) { return nil, nil })
	}()

	resp, err := redblack.NewResponse(3, map[string]bool{})
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, resp))

	got, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, redblack.KindError, got.Kind)
	assert.Equal(t, redblack.CodeInvalidRequest, got.Error.Code)
	assert.Equal(t, int64(3), got.ID)
}

func TestTamperedFrameIsLoggedAndRejected(t *testing.T) {
	ctx := testContext(t)
	identity := mustKeyPair(t)

	var buf bytes.Buffer
	logger := logging.New(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	service, _, _, clientConn := establish(t, ctx, identity, []session.Option{session.WithLogger(logger)}, nil)

	req, err := redblack.NewRequest(1, "m")
	require.NoError(t, err)
	env, err := redblack.RedToBlack(identity.PrivateKey, service.LocalKey(), req)
	require.NoError(t, err)

	raw, err := hex.DecodeString(env.MsgHex)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	env.MsgHex = hex.EncodeToString(raw)

	frame, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, clientConn.WriteFrame(ctx, frame))

	_, err = service.Receive(ctx)
	require.ErrorIs(t, err, redblack.ErrSignatureVerification)
	assert.Contains(t, buf.String(), "envelope failed authentication")
	assert.Contains(t, buf.String(), service.ID().String())
	assert.NotContains(t, buf.String(), identity.PrivateKey)
}

func TestMalformedFrameRejected(t *testing.T) {
	ctx := testContext(t)
	service, _, _, clientConn := establish(t, ctx, mustKeyPair(t), nil, nil)

	require.NoError(t, clientConn.WriteFrame(ctx, []byte(`{"jsonrpc":"2.0","method":"m","id":1}`)))
	_, err := service.Receive(ctx)
	assert.ErrorIs(t, err, redblack.ErrMalformedEnvelope)
}
