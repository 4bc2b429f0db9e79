// Package session runs the redblack handshake and message exchange over a
// frame-oriented connection.
//
// A service accepting a connection calls Accept, which generates a session
// key pair and writes the unencrypted hello. A client calls Connect with its
// identity key pair, which reads the hello and records the session key.
// Every later frame is a black envelope: the client encrypts to the session
// key and the service replies to the key that signed the request.
//
//	// service
//	s, err := session.Accept(ctx, conn, session.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	err = s.Serve(ctx, func(ctx context.Context, req redblack.Message) (any, error) {
//	    return map[string]bool{"ok": true}, nil
//	})
//
//	// client
//	c, err := session.Connect(ctx, conn, identity)
//	resp, err := c.Call(ctx, "doSomething", "x", 1)
//
// Signature and decryption failures are logged at warn level, counted in
// package metrics and returned; callers should close the connection on any
// error that satisfies redblack.IsSecurityFailure.
//
// The transport is external: Conn is satisfied by wsconn.Conn for websockets
// and by mocknet endpoints in tests.
package session
