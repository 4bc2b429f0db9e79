// Package metrics exposes Prometheus counters for red/black transforms and
// sessions. Counters register on the default registry.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/secmsg/redblack-go/pkg/redblack"
)

var (
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redblack_sessions_started_total",
			Help: "Sessions that completed the hello handshake",
		},
		[]string{"role"}, // "service" or "client"
	)

	EnvelopesSealed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redblack_envelopes_sealed_total",
			Help: "Red messages encoded to black envelopes",
		},
		[]string{"role", "result"},
	)

	EnvelopesOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redblack_envelopes_opened_total",
			Help: "Black envelopes decoded, by outcome",
		},
		[]string{"role", "result"},
	)

	SecurityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redblack_security_failures_total",
			Help: "Envelopes rejected as forged or from an unexpected signer",
		},
		[]string{"role", "reason"},
	)
)

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	switch redblack.ErrorKind(err) {
	case redblack.ErrKeyFormat:
		return "key_format"
	case redblack.ErrSerialization:
		return "serialization"
	case redblack.ErrMalformedEnvelope:
		return "malformed_envelope"
	case redblack.ErrSignatureVerification:
		return "signature"
	case redblack.ErrDecryption:
		return "decryption"
	case redblack.ErrDeserialization:
		return "deserialization"
	case redblack.ErrInvalidProtocolEnvelope:
		return "invalid_protocol"
	}
	var rbErr *redblack.Error
	if errors.As(err, &rbErr) {
		return "internal"
	}
	return "other"
}

// ObserveSeal records one encode attempt.
func ObserveSeal(role string, err error) {
	EnvelopesSealed.WithLabelValues(role, Result(err)).Inc()
}

// ObserveOpen records one decode attempt, counting security failures
// separately.
func ObserveOpen(role string, err error) {
	result := Result(err)
	EnvelopesOpened.WithLabelValues(role, result).Inc()
	if redblack.IsSecurityFailure(err) {
		SecurityFailures.WithLabelValues(role, result).Inc()
	}
}

// PeerRejected is the result label for envelopes whose signer is not the
// session peer.
const PeerRejected = "peer_rejected"

// ObservePeerRejected records an envelope dropped because its signer key
// does not match the bound, pinned or accepted peer.
func ObservePeerRejected(role string) {
	EnvelopesOpened.WithLabelValues(role, PeerRejected).Inc()
	SecurityFailures.WithLabelValues(role, PeerRejected).Inc()
}
