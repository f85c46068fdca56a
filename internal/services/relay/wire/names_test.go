package wire

import (
	"strings"
	"testing"
)

func TestNormalizeNameComposesToNFC(t *testing.T) {
	decomposed := "cafe\u0301"
	got, err := NormalizeName("room name", decomposed)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "caf\u00e9" {
		t.Fatalf("expected composed form, got %q", got)
	}
}

func TestNormalizeNameLimits(t *testing.T) {
	if _, err := NormalizeName("room name", strings.Repeat("a", MaxNameBytes)); err != nil {
		t.Fatalf("expected %d bytes to pass: %v", MaxNameBytes, err)
	}
	if _, err := NormalizeName("room name", strings.Repeat("a", MaxNameBytes+1)); err == nil {
		t.Fatal("expected oversize name to fail")
	}
	if _, err := NormalizeName("room name", "   "); err == nil {
		t.Fatal("expected blank name to fail")
	}
	if _, err := NormalizeName("room name", string([]byte{0xff})); err == nil {
		t.Fatal("expected invalid UTF-8 to fail")
	}
}

func TestNormalizeNameMultibyteBoundary(t *testing.T) {
	// 85 three-byte runes = 255 bytes.
	name := strings.Repeat("部", 85)
	if _, err := NormalizeName("user name", name); err != nil {
		t.Fatalf("expected 255-byte name to pass: %v", err)
	}
	if _, err := NormalizeName("user name", name+"a"); err == nil {
		t.Fatal("expected 256-byte name to fail")
	}
}
