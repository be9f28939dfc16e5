package common

import (
	"encoding/hex"
	"testing"
)

func TestMakeRandHexString_LengthAndCharset(t *testing.T) {
	for _, size := range []int{1, 16, 32} {
		s, err := MakeRandHexString(size)
		if err != nil {
			t.Fatalf("MakeRandHexString(%d) error: %v", size, err)
		}
		if len(s) != size*2 {
			t.Fatalf("want length %d, got %d", size*2, len(s))
		}
		if _, err := hex.DecodeString(s); err != nil {
			t.Fatalf("not valid hex: %q", s)
		}
	}
}

func TestMakeRandHexString_Unique(t *testing.T) {
	a, err := MakeRandHexString(32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := MakeRandHexString(32)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two generated values collided: %s", a)
	}
}
