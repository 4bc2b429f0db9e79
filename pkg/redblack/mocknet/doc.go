// Package mocknet provides an in-memory frame transport for tests and
// examples.
//
// Pipe returns two connected endpoints that implement session.Conn. Frames
// are delivered in order, copied on send, and reads and writes honour
// context cancellation.
//
//	client, service := mocknet.Pipe()
//
//	go func() {
//	    s, _ := session.Accept(ctx, service)
//	    _ = s.Serve(ctx, handler)
//	}()
//
//	c, err := session.Connect(ctx, client, identity)
//
// # Testing Tips
//
//   - Always use context.WithTimeout to prevent test hangs
//   - Use WriteFrame on the peer endpoint to inject raw or tampered frames
//   - Closing either endpoint fails pending and future reads on both
package mocknet
