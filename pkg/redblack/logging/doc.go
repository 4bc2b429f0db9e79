// Package logging provides the logging facade used by redblack sessions.
//
// Logger wraps the subset of log/slog the session layer needs. Applications
// can plug in their own implementation for testing or redaction policies, or
// bind to an slog.Logger with New:
//
//	handler, err := logging.NewHandler(os.Stderr, "json", "debug")
//	if err != nil {
//	    return err
//	}
//	logger := logging.New(slog.New(handler))
//
// # Redaction
//
// Private keys and decrypted plaintext are never logged. Use Redacted to
// record that a value was intentionally left out:
//
//	logger.Debug(ctx, "identity loaded", "public_key", pub, logging.Redacted("private_key"))
//	// Logs: private_key="[redacted]"
//
// Envelope hex strings may be logged by length only; see Size.
package logging
