package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const CodeOK = 200

var ErrEmptyData = errors.New("empty data")

// Response is the REST envelope. Data is kept raw: the backend encodes it as
// a JSON string holding another JSON document, older deployments send the
// document inline.
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (r Response) OK() bool { return r.Code == CodeOK }

// NewResponse builds an envelope whose data field is v marshalled and then
// wrapped as a JSON string, which is what the mini program client expects.
func NewResponse(code int, message string, v any) (Response, error) {
	resp := Response{Code: code, Message: message}
	if v == nil {
		return resp, nil
	}
	inner, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("marshal data: %w", err)
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		return Response{}, fmt.Errorf("marshal data string: %w", err)
	}
	resp.Data = outer

	return resp, nil
}

// DecodeData unmarshals a data field into dst, unwrapping one level of
// JSON-in-a-string when present. This is the only place that knows about the
// double encoding.
func DecodeData(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ErrEmptyData
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode data string: %w", err)
		}
		if s == "" || s == "null" {
			return ErrEmptyData
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}

	return nil
}
