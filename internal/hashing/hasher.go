package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Hash algorithm identifiers stored alongside each record so old codes stay
// verifiable after the default changes.
const (
	AlgorithmSHA256   = "sha256-v1"
	AlgorithmArgon2id = "argon2id-v1"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
	ErrInvalidHash      = errors.New("invalid hash format")
)

// Argon2Params tunes the argon2id variant. The OTP being a 6-digit secret,
// the work factor matters mostly for offline guessing if storage leaks.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultArgon2Params is sized for interactive verification latency.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  1,
		Parallelism: 4,
		KeyLength:   32,
	}
}

// Hasher computes one-way digests of OTP codes. Hash is deterministic for a
// given (code, salt) pair; the per-record random salt prevents precomputed
// digest tables across records.
type Hasher struct {
	algorithm string
	params    Argon2Params
	saltLen   int
}

func NewHasher(algorithm string) (*Hasher, error) {
	switch algorithm {
	case AlgorithmSHA256, AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	return &Hasher{
		algorithm: algorithm,
		params:    DefaultArgon2Params(),
		saltLen:   16,
	}, nil
}

// Algorithm returns the identifier written into new records.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// NewSalt generates a fresh random salt, base64url encoded.
func (h *Hasher) NewSalt() (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(salt), nil
}

// Hash digests code with salt using the hasher's configured algorithm.
func (h *Hasher) Hash(code, salt string) (string, error) {
	return h.hashWith(h.algorithm, code, salt)
}

// Verify recomputes the digest under the algorithm the record was stored
// with and compares in constant time.
func (h *Hasher) Verify(code, salt, algorithm, expected string) (bool, error) {
	if algorithm == "" {
		algorithm = AlgorithmSHA256
	}
	computed, err := h.hashWith(algorithm, code, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
}

func (h *Hasher) hashWith(algorithm, code, salt string) (string, error) {
	switch algorithm {
	case AlgorithmSHA256:
		sum := sha256.Sum256([]byte(code + ":" + salt))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case AlgorithmArgon2id:
		rawSalt, err := base64.RawURLEncoding.DecodeString(salt)
		if err != nil {
			return "", ErrInvalidHash
		}
		key := argon2.IDKey(
			[]byte(code),
			rawSalt,
			h.params.Iterations,
			h.params.Memory,
			h.params.Parallelism,
			h.params.KeyLength,
		)
		return base64.RawURLEncoding.EncodeToString(key), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}
