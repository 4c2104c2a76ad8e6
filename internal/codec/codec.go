// Package codec turns box content into a transport-safe token and back.
//
// A token is the standard (padded) base64 encoding of the content's UTF-8
// bytes. Decoding accepts anything: values that are not valid tokens are
// returned as-is, which keeps entries written before encoding existed readable.
package codec

import (
	"encoding/base64"
	stderrors "errors"
	"unicode/utf8"
)

// ErrMalformedToken is reported by DecodeStrict when the input is not a token.
var ErrMalformedToken = stderrors.New("malformed content token")

// ErrInvalidText is reported by EncodeStrict when the input is not valid UTF-8.
var ErrInvalidText = stderrors.New("content is not valid UTF-8")

// EncodeStrict encodes text into a token.
func EncodeStrict(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", ErrInvalidText
	}
	return base64.StdEncoding.EncodeToString([]byte(text)), nil
}

// Encode encodes text into a token, returning text unchanged if it cannot be encoded.
func Encode(text string) string {
	token, err := EncodeStrict(text)
	if err != nil {
		return text
	}
	return token
}

// DecodeStrict decodes a token produced by Encode.
// Returns ErrMalformedToken if token is not valid base64 or does not decode to UTF-8.
func DecodeStrict(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrMalformedToken
	}
	if !utf8.Valid(raw) {
		return "", ErrMalformedToken
	}
	return string(raw), nil
}

// Decode decodes a token, returning token unchanged if it is malformed.
func Decode(token string) string {
	text, err := DecodeStrict(token)
	if err != nil {
		return token
	}
	return text
}
