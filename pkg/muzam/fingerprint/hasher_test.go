package fingerprint

import "testing"

func TestHashFuncDeterministic(t *testing.T) {
	for _, d := range []Digest{DigestXXHash, DigestMD5, DigestSHA256} {
		h, err := newHashFunc(d, 128)
		if err != nil {
			t.Fatalf("newHashFunc(%s) failed: %v", d, err)
		}
		a := h([]byte("0101101001"))
		b := h([]byte("0101101001"))
		c := h([]byte("0101101000"))
		if a != b {
			t.Errorf("%s: expected identical digests, got %s and %s", d, a, b)
		}
		if a == c {
			t.Errorf("%s: expected different digests for different bits", d)
		}
	}
}

func TestHashFuncKnownMD5(t *testing.T) {
	h, err := newHashFunc(DigestMD5, 64)
	if err != nil {
		t.Fatalf("newHashFunc failed: %v", err)
	}
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	if got := h(nil); got != "d41d8cd98f00b204" {
		t.Errorf("Expected d41d8cd98f00b204, got %s", got)
	}
}

func TestXXHashLanesDiffer(t *testing.T) {
	h, err := newHashFunc(DigestXXHash, 128)
	if err != nil {
		t.Fatalf("newHashFunc failed: %v", err)
	}
	v := h([]byte("111000111"))
	if v[:16] == v[16:] {
		t.Errorf("Expected independent lanes, got %s", v)
	}
}
