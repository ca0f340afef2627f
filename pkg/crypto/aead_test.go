package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenWithTag(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	pt := []byte("authInfo || signature")

	sealed, err := SealWithTag(nil, key, pt, "hichain_exchange_request")
	if err != nil {
		t.Fatalf("SealWithTag: %v", err)
	}
	if len(sealed) != len(pt)+AEADOverhead {
		t.Fatalf("sealed length = %d, want %d", len(sealed), len(pt)+AEADOverhead)
	}

	got, err := OpenWithTag(key, sealed, "hichain_exchange_request")
	if err != nil {
		t.Fatalf("OpenWithTag: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Errorf("plaintext = %q", got)
	}
}

func TestOpenWithTag_Rejects(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	sealed, _ := SealWithTag(nil, key, []byte("payload"), "hichain_exchange_request")

	tests := []struct {
		name   string
		key    []byte
		sealed []byte
		tag    string
	}{
		{"wrong tag", key, sealed, "hichain_exchange_response"},
		{"wrong key", bytes.Repeat([]byte{0x43}, 32), sealed, "hichain_exchange_request"},
		{"truncated", key, sealed[:AEADOverhead-1], "hichain_exchange_request"},
		{"flipped bit", key, flip(sealed, len(sealed)-1), "hichain_exchange_request"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := OpenWithTag(tc.key, tc.sealed, tc.tag); !errors.Is(err, ErrAEADOpen) {
				t.Errorf("err = %v, want ErrAEADOpen", err)
			}
		})
	}
}

func TestSealWithTag_EmptyKey(t *testing.T) {
	if _, err := SealWithTag(nil, nil, []byte("x"), "t"); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("err = %v, want ErrEmptyKey", err)
	}
}

func flip(b []byte, i int) []byte {
	c := append([]byte(nil), b...)
	c[i] ^= 1
	return c
}
