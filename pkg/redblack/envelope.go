package redblack

import "encoding/json"

// BlackMessage is the wire envelope: hex ciphertext, hex DER signature over
// SHA-256 of the ciphertext, and the sender's hex public key.
type BlackMessage struct {
	MsgHex string `json:"msghex"`
	SigHex string `json:"sighex"`
	SpkHex string `json:"spkhex"`
}

// ParseBlackMessage decodes one wire frame into a BlackMessage. Frames that
// are not JSON objects with all three members fail with ErrMalformedEnvelope.
func ParseBlackMessage(data []byte) (*BlackMessage, error) {
	const op = "ParseBlackMessage"
	if !IsBlackMsg(json.RawMessage(data)) {
		return nil, errorf(op, ErrMalformedEnvelope, "frame is not a black envelope")
	}
	var env BlackMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errorf(op, ErrMalformedEnvelope, "%v", err)
	}
	return &env, nil
}

// Marshal encodes the envelope as a single wire frame.
func (b *BlackMessage) Marshal() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, errorf("BlackMessage.Marshal", ErrSerialization, "%v", err)
	}
	return data, nil
}
