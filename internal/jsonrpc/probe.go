package jsonrpc

import (
	"github.com/buger/jsonparser"
)

// HasRequestID reports whether the frame carries an "id" member at the top
// level. It only inspects the one key, so a frame whose deeper fields are
// malformed still classifies correctly. A frame that is not valid JSON at all
// reports false.
func HasRequestID(frame []byte) bool {
	_, _, _, err := jsonparser.Get(frame, "id")
	return err == nil
}

// ExtractID is the best-effort ID recovery used when a frame failed decoding
// or handling. It pulls the top-level "id" out of the raw frame, coercing a
// numeric value to int64 and a string to string, and returns nil for anything
// else: malformed JSON, a missing field, or an ID of the wrong type. It never
// returns an error and never panics, so the error-response path built on it
// cannot itself fail.
func ExtractID(frame []byte) *RequestID {
	v, dt, _, err := jsonparser.Get(frame, "id")
	if err != nil {
		return nil
	}
	switch dt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return nil
		}
		return NewRequestID(s)
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(v)
		if err != nil {
			return nil
		}
		if f == float64(int64(f)) {
			return NewRequestID(int64(f))
		}
		return NewRequestID(f)
	default:
		return nil
	}
}
