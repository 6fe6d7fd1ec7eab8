package protocol

import (
	"math/rand"
	"testing"
)

func TestCodeV2RoundTrip(t *testing.T) {
	for _, s := range []string{"ABCDEF", "QWERTY", "AAAAAA", "ZZZZZZ", "STRUCT"} {
		code, err := CodeFromString(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if !code.IsV2() {
			t.Fatalf("%q should pack with the sign bit set, got %d", s, int32(code))
		}
		if code.String() != s {
			t.Fatalf("round trip %q -> %q", s, code.String())
		}
	}
}

func TestCodeV1RoundTrip(t *testing.T) {
	code, err := CodeFromString("CODE")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if code.IsV2() {
		t.Fatal("four letter codes must stay positive")
	}
	if code.String() != "CODE" {
		t.Fatalf("round trip CODE -> %q", code.String())
	}
}

func TestCodeNormalizesInput(t *testing.T) {
	a, _ := CodeFromString("abcdef")
	b, _ := CodeFromString(" ABCDEF ")
	if a != b {
		t.Fatal("case and whitespace should not matter")
	}
}

func TestCodeRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "ABC", "ABCDE", "ABCDEFG", "ABC123", "ABC EF"} {
		if _, err := CodeFromString(s); err == nil {
			t.Fatalf("%q should be rejected", s)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		code := GenerateCode(rng)
		if !code.IsV2() {
			t.Fatalf("generated code %d is not v2", int32(code))
		}
		s := code.String()
		if len(s) != 6 {
			t.Fatalf("generated code %q has wrong length", s)
		}
		back, err := CodeFromString(s)
		if err != nil || back != code {
			t.Fatalf("generated code does not round trip: %q %v", s, err)
		}
	}
}

func TestVersionPacking(t *testing.T) {
	v := ClientVersion{Year: 2021, Month: 6, Day: 30, Revision: 0}
	if v.Encode() != 2021*25000+6*1800+30*50 {
		t.Fatalf("unexpected encoding %d", v.Encode())
	}
	if DecodeVersion(v.Encode()) != v {
		t.Fatal("version does not round trip")
	}

	parsed, err := ParseVersion("2021.6.30")
	if err != nil || parsed != v {
		t.Fatalf("parse: %+v %v", parsed, err)
	}
	withRev, err := ParseVersion("2021.11.9.5")
	if err != nil || withRev.Revision != 5 {
		t.Fatalf("parse with revision: %+v %v", withRev, err)
	}
	if withRev.String() != "2021.11.9.5" {
		t.Fatalf("string form %q", withRev.String())
	}
	if _, err := ParseVersion("not.a.version"); err == nil {
		t.Fatal("garbage must not parse")
	}
}
