package httpclient

import "encoding/json"

// TransportErrorCode is the synthetic code returned for any transport
// failure or non-200 response other than 429 (which is reported as code
// 429), chosen far outside the vendor's code space
// so callers can switch on a single int instead of distinguishing Go
// errors from business failures.
const TransportErrorCode = -114514

// Envelope is the vendor's response shape. The vendor uses two code field
// names (code and errno) and two message field names (msg and message)
// interchangeably across endpoints; Envelope unifies both onto one field
// each so callers never need to know which endpoint they hit.
type Envelope struct {
	Code int             `json:"-"`
	Msg  string          `json:"-"`
	Data json.RawMessage `json:"-"`
}

type rawEnvelope struct {
	Code    *int            `json:"code"`
	Errno   *int            `json:"errno"`
	Msg     *string         `json:"msg"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ParseEnvelope unifies the vendor's two code/message spellings into a
// single Envelope.
func ParseEnvelope(body []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, err
	}

	env := Envelope{Data: raw.Data}
	switch {
	case raw.Code != nil:
		env.Code = *raw.Code
	case raw.Errno != nil:
		env.Code = *raw.Errno
	}
	switch {
	case raw.Msg != nil:
		env.Msg = *raw.Msg
	case raw.Message != nil:
		env.Msg = *raw.Message
	}
	return env, nil
}

// transportEnvelope is the synthetic response the client returns on any
// transport failure or non-200 status, carrying the given code
// (TransportErrorCode, or 429 for an overloaded server) so callers can
// switch uniformly.
func transportEnvelope(code int, msg string) Envelope {
	return Envelope{Code: code, Msg: msg}
}
