package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/secmsg/redblack-go/pkg/redblack"
	"github.com/secmsg/redblack-go/pkg/redblack/logging"
	"github.com/secmsg/redblack-go/pkg/redblack/metrics"
)

// Conn is a message-framed, bidirectional connection. Each frame carries one
// JSON document.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Role distinguishes the two ends of a session.
type Role uint8

const (
	RoleService Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleService {
		return "service"
	}
	return "client"
}

var (
	// ErrNotHello indicates the first frame of a session was not a valid
	// hello.
	ErrNotHello = errors.New("session: first frame is not a hello")

	// ErrNoPeer indicates a send before the peer key is known.
	ErrNoPeer = errors.New("session: peer key unknown")

	// ErrPeerRejected indicates an envelope signed by a key other than the
	// bound or pinned peer key.
	ErrPeerRejected = errors.New("session: peer key rejected")

	// ErrUnexpectedMessage indicates a message kind that is not valid at this
	// point of the exchange.
	ErrUnexpectedMessage = errors.New("session: unexpected message")

	// ErrIDMismatch indicates a response whose id does not match the request.
	ErrIDMismatch = errors.New("session: response id mismatch")
)

type options struct {
	logger     logging.Logger
	peerKey    string
	acceptPeer func(publicKey string) bool
}

// Option configures Accept and Connect.
type Option func(*options)

// WithLogger sets the session logger. The default discards records.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPeerKey pins the public key the peer must sign with. On the service
// side this is the client's identity key; on the client side it is compared
// against the key announced in the hello.
func WithPeerKey(publicKey string) Option {
	return func(o *options) { o.peerKey = publicKey }
}

// WithAcceptPeer installs a check on the declared signer of every envelope
// received while no peer key is bound. It runs before the signature is
// verified, so it may see keys that never bind. Returning false rejects the
// envelope with ErrPeerRejected.
func WithAcceptPeer(accept func(publicKey string) bool) Option {
	return func(o *options) { o.acceptPeer = accept }
}

// Session is one end of an established redblack connection. Send and Receive
// may be called from different goroutines; concurrent Sends are serialized.
type Session struct {
	id         uuid.UUID
	role       Role
	conn       Conn
	local      redblack.KeyPair
	logger     logging.Logger
	acceptPeer func(string) bool

	mu      sync.Mutex
	peerKey string

	writeMu sync.Mutex
	nextID  atomic.Int64
}

func newSession(role Role, conn Conn, local redblack.KeyPair, opts []Option) (*Session, error) {
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:         uuid.New(),
		role:       role,
		conn:       conn,
		local:      local,
		acceptPeer: o.acceptPeer,
	}
	s.logger = o.logger.With("session", s.id.String(), "role", role.String())

	if o.peerKey != "" {
		pinned, err := redblack.NormalizePublicKey(o.peerKey)
		if err != nil {
			return nil, fmt.Errorf("session: pinned peer key: %w", err)
		}
		s.peerKey = pinned
	}
	return s, nil
}

// Accept starts the service side of a session: it generates a session key
// pair and writes the hello frame announcing its public key.
func Accept(ctx context.Context, conn Conn, opts ...Option) (*Session, error) {
	keys, err := redblack.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	s, err := newSession(RoleService, conn, keys, opts)
	if err != nil {
		return nil, err
	}

	hello, err := json.Marshal(redblack.NewHello(keys.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("session: encode hello: %w", err)
	}
	if err := conn.WriteFrame(ctx, hello); err != nil {
		return nil, fmt.Errorf("session: write hello: %w", err)
	}

	metrics.SessionsStarted.WithLabelValues(s.role.String()).Inc()
	s.logger.Info(ctx, "session accepted", "session_key", keys.PublicKey)
	return s, nil
}

// Connect starts the client side of a session with a long-lived identity key
// pair. It reads the first frame, which must be a hello.
func Connect(ctx context.Context, conn Conn, identity redblack.KeyPair, opts ...Option) (*Session, error) {
	pub, err := redblack.PublicKeyFromPrivate(identity.PrivateKey)
	if err != nil {
		return nil, err
	}
	identity.PublicKey = pub

	s, err := newSession(RoleClient, conn, identity, opts)
	if err != nil {
		return nil, err
	}

	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: read hello: %w", err)
	}
	if !redblack.IsJSONRPC(frame) {
		s.logger.Warn(ctx, "first frame rejected", logging.Size("frame", frame))
		return nil, ErrNotHello
	}
	hello, err := redblack.ParseMessage(frame)
	if err != nil || hello.Kind != redblack.KindHello {
		s.logger.Warn(ctx, "first frame rejected", logging.Size("frame", frame))
		return nil, ErrNotHello
	}
	sessionKey, err := hello.HelloKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotHello, err)
	}
	normalized, err := s.checkPeer(sessionKey)
	if err == nil {
		err = s.bindPeer(normalized)
	}
	if err != nil {
		s.logger.Warn(ctx, "session key rejected", "session_key", sessionKey)
		return nil, err
	}

	metrics.SessionsStarted.WithLabelValues(s.role.String()).Inc()
	s.logger.Info(ctx, "session connected", "session_key", sessionKey, "identity", identity)
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Role reports which end of the session this is.
func (s *Session) Role() Role { return s.role }

// LocalKey returns the public key this end signs with.
func (s *Session) LocalKey() string { return s.local.PublicKey }

// PeerKey returns the bound peer key, or "" before it is known.
func (s *Session) PeerKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerKey
}

// checkPeer reports whether key may act as the peer: it must equal the bound
// or pinned key, or pass the accept check when none is known yet.
func (s *Session) checkPeer(key string) (string, error) {
	normalized, err := redblack.NormalizePublicKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPeerRejected, err)
	}

	s.mu.Lock()
	bound := s.peerKey
	s.mu.Unlock()

	if bound != "" {
		if bound != normalized {
			return "", ErrPeerRejected
		}
		return normalized, nil
	}
	if s.acceptPeer != nil && !s.acceptPeer(normalized) {
		return "", ErrPeerRejected
	}
	return normalized, nil
}

// bindPeer records key as the peer unless another key won the race.
func (s *Session) bindPeer(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerKey == "" {
		s.peerKey = key
		return nil
	}
	if s.peerKey != key {
		return ErrPeerRejected
	}
	return nil
}

// Send encrypts msg to the peer key and writes it as one frame.
func (s *Session) Send(ctx context.Context, msg redblack.Message) error {
	peer := s.PeerKey()
	if peer == "" {
		return ErrNoPeer
	}

	env, err := redblack.RedToBlack(s.local.PrivateKey, peer, msg)
	metrics.ObserveSeal(s.role.String(), err)
	if err != nil {
		return err
	}
	frame, err := env.Marshal()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	s.logger.Debug(ctx, "message sent", "kind", msg.Kind.String(), "id", msg.ID, logging.Size("frame", frame))
	return nil
}

// Receive reads one frame, checks the signer against the peer key, and
// decodes it. Any error other than a transport error means the frame was
// rejected.
func (s *Session) Receive(ctx context.Context) (redblack.Message, error) {
	frame, err := s.conn.ReadFrame(ctx)
	if err != nil {
		return redblack.Message{}, fmt.Errorf("session: read: %w", err)
	}

	env, err := redblack.ParseBlackMessage(frame)
	if err != nil {
		metrics.ObserveOpen(s.role.String(), err)
		s.logger.Warn(ctx, "frame rejected", "error", err, logging.Size("frame", frame))
		return redblack.Message{}, err
	}

	// Unknown signers are rejected before the envelope reaches decryption.
	// The key is bound only once Open has verified the signature.
	signer, err := s.checkPeer(env.SpkHex)
	if err != nil {
		metrics.ObservePeerRejected(s.role.String())
		s.logger.Warn(ctx, "envelope from unexpected key", "spk", env.SpkHex)
		return redblack.Message{}, err
	}

	msg, err := redblack.Open(s.local.PrivateKey, env)
	metrics.ObserveOpen(s.role.String(), err)
	if err != nil {
		if redblack.IsSecurityFailure(err) {
			s.logger.Warn(ctx, "envelope failed authentication", "error", err, "spk", env.SpkHex)
		} else {
			s.logger.Warn(ctx, "envelope rejected", "error", err)
		}
		return redblack.Message{}, err
	}

	if err := s.bindPeer(signer); err != nil {
		metrics.ObservePeerRejected(s.role.String())
		s.logger.Warn(ctx, "envelope from unexpected key", "spk", env.SpkHex)
		return redblack.Message{}, err
	}

	s.logger.Debug(ctx, "message received", "kind", msg.Kind.String(), "id", msg.ID)
	return msg, nil
}

// Call sends a request and waits for the reply with the same id. An error
// response is returned as the message together with its *redblack.RPCError.
// Call must not be used concurrently with other Receive calls on the same
// session.
func (s *Session) Call(ctx context.Context, method string, params ...any) (redblack.Message, error) {
	id := s.nextID.Add(1)
	req, err := redblack.NewRequest(id, method, params...)
	if err != nil {
		return redblack.Message{}, err
	}
	if err := s.Send(ctx, req); err != nil {
		return redblack.Message{}, err
	}

	resp, err := s.Receive(ctx)
	if err != nil {
		return redblack.Message{}, err
	}
	switch resp.Kind {
	case redblack.KindResponse, redblack.KindError:
	default:
		return redblack.Message{}, fmt.Errorf("%w: %s", ErrUnexpectedMessage, resp.Kind)
	}
	if resp.ID != id {
		return redblack.Message{}, fmt.Errorf("%w: sent %d, got %d", ErrIDMismatch, id, resp.ID)
	}
	if resp.Kind == redblack.KindError {
		return resp, resp.Error
	}
	return resp, nil
}

// Reply sends a successful response to request id.
func (s *Session) Reply(ctx context.Context, id int64, result any) error {
	resp, err := redblack.NewResponse(id, result)
	if err != nil {
		return err
	}
	return s.Send(ctx, resp)
}

// ReplyError sends an error response to request id.
func (s *Session) ReplyError(ctx context.Context, id int64, code int, message string) error {
	return s.Send(ctx, redblack.NewError(code, message, id))
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
