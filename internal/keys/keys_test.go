package keys

import (
	"strings"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	set := Set{"openai": "sk-abc123", "brave": "bs-xyz"}

	encoded, err := Encode(set)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Get("openai") != "sk-abc123" || decoded.Get("brave") != "bs-xyz" {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestDecode_EmptyIsEmptySet(t *testing.T) {
	set, err := Decode("")
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %+v", set)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode("%%%not-base64%%%"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestMasked(t *testing.T) {
	set := Set{"openai": "sk-abcdef", "short": "ab", "empty": ""}
	masked := set.Masked()

	if masked["openai"] != "...cdef" {
		t.Fatalf("unexpected mask: %q", masked["openai"])
	}
	if masked["short"] != "..." {
		t.Fatalf("short keys must mask fully, got %q", masked["short"])
	}
	if _, ok := masked["empty"]; ok {
		t.Fatalf("empty keys must not appear")
	}
	for _, v := range masked {
		if strings.Contains(v, "abcdef") {
			t.Fatalf("mask leaked the key: %q", v)
		}
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	set := Set{"openai": "sk-secret", "anthropic": "ant-secret"}

	payload, key, err := Export(set)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(payload, "sk-secret") {
		t.Fatalf("payload must not contain plaintext keys")
	}

	got, err := Import(payload, key)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got.Get("openai") != "sk-secret" || got.Get("anthropic") != "ant-secret" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestImport_WrongKeyFails(t *testing.T) {
	payload, _, err := Export(Set{"openai": "sk-secret"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	_, otherKey, err := Export(Set{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if _, err := Import(payload, otherKey); err == nil {
		t.Fatalf("expected decryption failure with the wrong key")
	}
}

func TestImport_TamperedPayloadFails(t *testing.T) {
	payload, key, err := Export(Set{"openai": "sk-secret"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	// Flip a character somewhere in the middle.
	b := []byte(payload)
	mid := len(b) / 2
	if b[mid] == 'A' {
		b[mid] = 'B'
	} else {
		b[mid] = 'A'
	}

	if _, err := Import(string(b), key); err == nil {
		t.Fatalf("expected tampered payload to fail")
	}
}
