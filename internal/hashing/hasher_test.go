package hashing

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"
)

func newTestHasher(t *testing.T, algorithm string) *Hasher {
	t.Helper()
	h, err := NewHasher(algorithm)
	if err != nil {
		t.Fatalf("NewHasher(%s) failed: %v", algorithm, err)
	}
	return h
}

func TestHashDeterministic(t *testing.T) {
	h := newTestHasher(t, AlgorithmSHA256)

	first, err := h.Hash("483920", "salt-a")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := h.Hash("483920", "salt-a")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first != second {
		t.Fatalf("same (code, salt) produced different digests: %s vs %s", first, second)
	}

	other, err := h.Hash("483920", "salt-b")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == other {
		t.Fatal("different salts produced the same digest")
	}
}

func TestVerify(t *testing.T) {
	h := newTestHasher(t, AlgorithmSHA256)

	salt, err := h.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	digest, err := h.Hash("123456", salt)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	match, err := h.Verify("123456", salt, AlgorithmSHA256, digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !match {
		t.Fatal("correct code did not verify")
	}

	match, err = h.Verify("654321", salt, AlgorithmSHA256, digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if match {
		t.Fatal("wrong code verified")
	}
}

func TestVerifyEmptyAlgorithmDefaultsToSHA256(t *testing.T) {
	h := newTestHasher(t, AlgorithmSHA256)

	salt, _ := h.NewSalt()
	digest, _ := h.Hash("777777", salt)

	match, err := h.Verify("777777", salt, "", digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !match {
		t.Fatal("record without an algorithm tag did not verify under the sha256 default")
	}
}

func TestArgon2Roundtrip(t *testing.T) {
	h := newTestHasher(t, AlgorithmArgon2id)

	salt, err := h.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	digest, err := h.Hash("246810", salt)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	match, err := h.Verify("246810", salt, AlgorithmArgon2id, digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !match {
		t.Fatal("argon2id digest did not verify")
	}

	match, err = h.Verify("246811", salt, AlgorithmArgon2id, digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if match {
		t.Fatal("wrong code verified under argon2id")
	}
}

func TestNewHasherUnknownAlgorithm(t *testing.T) {
	if _, err := NewHasher("md5"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestNoCollisionsAcrossRandomPairs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping collision sweep in short mode")
	}

	h := newTestHasher(t, AlgorithmSHA256)
	seen := make(map[string]string, 10000)

	for i := 0; i < 10000; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(900000))
		if err != nil {
			t.Fatalf("rand failed: %v", err)
		}
		code := fmt.Sprintf("%06d", n.Int64()+100000)
		salt, err := h.NewSalt()
		if err != nil {
			t.Fatalf("NewSalt failed: %v", err)
		}
		digest, err := h.Hash(code, salt)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}

		pair := code + "|" + salt
		if prev, ok := seen[digest]; ok && prev != pair {
			t.Fatalf("digest collision between %q and %q", prev, pair)
		}
		seen[digest] = pair
	}
}
