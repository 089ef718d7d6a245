package mesh

import (
	"time"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

const envelopeText = "text"

// envelope is what travels over a data channel.
type envelope struct {
	Type   string `msgpack:"type"`
	Text   string `msgpack:"text,omitempty"`
	SentAt int64  `msgpack:"sent_at,omitempty"`
}

// EncodeText packs a chat line for the wire.
func EncodeText(text string, at time.Time) ([]byte, error) {
	return msgpack.Marshal(envelope{Type: envelopeText, Text: text, SentAt: at.UnixMilli()})
}

// DecodeText unpacks a chat line. Payloads that are not envelopes are read
// as raw UTF-8 so peers sending plain strings still interoperate.
func DecodeText(data []byte) (string, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err == nil && env.Type == envelopeText {
		return env.Text, nil
	}
	if len(data) == 0 || !utf8.Valid(data) {
		return "", ErrInvalidMessage
	}
	return string(data), nil
}
