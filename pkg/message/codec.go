package message

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/backkem/hichain/pkg/status"
)

// HexBytes is a byte string carried as a lowercase hex JSON string.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: want hex string: %v", status.ErrMalformedPayload, err)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedPayload, err)
	}
	*h = b
	return nil
}

type envelope struct {
	AuthForm *AuthForm `json:"authForm,omitempty"`
	Message  Code      `json:"message"`
	Payload  Payload   `json:"payload"`
}

// Marshal encodes m. The payload is validated against the same limits
// Unmarshal enforces, so a message this side builds is one the peer accepts.
func Marshal(m *Message) ([]byte, error) {
	if m == nil || m.Payload == nil {
		return nil, fmt.Errorf("%w: empty message", status.ErrMalformedPayload)
	}
	if m.Payload.Code() != m.Code {
		return nil, fmt.Errorf("%w: payload for %s in %s message", status.ErrMalformedPayload, m.Payload.Code(), m.Code)
	}
	if err := m.Payload.validate(); err != nil {
		return nil, err
	}
	env := envelope{Message: m.Code, Payload: m.Payload}
	if m.Code.HasAuthForm() {
		form := m.AuthForm
		env.AuthForm = &form
	}
	return json.Marshal(env)
}

// Unmarshal decodes and validates a message.
func Unmarshal(data []byte) (*Message, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrMalformedPayload, err)
	}

	rawCode, ok := top["message"]
	if !ok {
		return nil, fmt.Errorf("%w: missing message code", status.ErrMalformedPayload)
	}
	var code Code
	if err := json.Unmarshal(rawCode, &code); err != nil {
		return nil, fmt.Errorf("%w: message code: %v", status.ErrMalformedPayload, err)
	}

	payload := newPayload(code)
	if payload == nil {
		return nil, fmt.Errorf("%w: unknown message code %d", status.ErrMalformedPayload, int(code))
	}

	want := []string{"message", "payload"}
	if code.HasAuthForm() {
		want = append(want, "authForm")
	}
	if _, err := checkKeys(top, want); err != nil {
		return nil, err
	}

	m := &Message{Code: code, Payload: payload}
	if code.HasAuthForm() {
		if err := decodeField(top["authForm"], "authForm", &m.AuthForm); err != nil {
			return nil, err
		}
	}

	fields, err := strictObject(top["payload"], payloadKeys(payload)...)
	if err != nil {
		return nil, fmt.Errorf("%s payload: %w", code, err)
	}
	// Keys and nulls are checked above; decode each field into the struct.
	rv := reflect.ValueOf(payload).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := jsonName(rt.Field(i))
		if err := decodeField(fields[name], name, rv.Field(i).Addr().Interface()); err != nil {
			return nil, fmt.Errorf("%s payload: %w", code, err)
		}
	}

	if err := payload.validate(); err != nil {
		return nil, fmt.Errorf("%s payload: %w", code, err)
	}
	return m, nil
}

func newPayload(code Code) Payload {
	switch code {
	case CodePakeRequest:
		return &PakeRequest{}
	case CodePakeResponse:
		return &PakeResponse{}
	case CodePakeClientConfirm:
		return &PakeClientConfirm{}
	case CodePakeServerConfirm:
		return &PakeServerConfirm{}
	case CodeAuthStart:
		return &AuthStart{}
	case CodeAuthStartResponse:
		return &AuthStartResponse{}
	case CodeAuthAck:
		return &AuthAck{}
	case CodeInform:
		return &Inform{}
	}
	return nil
}

func payloadKeys(p Payload) []string {
	rt := reflect.TypeOf(p).Elem()
	keys := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		keys = append(keys, jsonName(rt.Field(i)))
	}
	return keys
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	return name
}

// strictObject decodes a JSON object that must have exactly the given keys,
// none of them null.
func strictObject(data []byte, keys ...string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: want object", status.ErrMalformedPayload)
	}
	return checkKeys(obj, keys)
}

func checkKeys(obj map[string]json.RawMessage, keys []string) (map[string]json.RawMessage, error) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", status.ErrMalformedPayload, k)
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, fmt.Errorf("%w: %q is null", status.ErrMalformedPayload, k)
		}
	}
	if len(obj) != len(keys) {
		var extra []string
		for k := range obj {
			if !contains(keys, k) {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return nil, fmt.Errorf("%w: unexpected keys %v", status.ErrMalformedPayload, extra)
	}
	return obj, nil
}

func decodeField(raw json.RawMessage, name string, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		if errors.Is(err, status.ErrMalformedPayload) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", status.ErrMalformedPayload, name, err)
	}
	return nil
}

func contains(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
