package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm identifies the AEAD used for sealing.
type Algorithm string

const (
	AESGCM   Algorithm = "aes-gcm"
	ChaCha20 Algorithm = "chacha20-poly1305"

	// Auto picks AES-GCM where the CPU accelerates AES, ChaCha20 otherwise.
	Auto Algorithm = "auto"
)

const keySize = 32

var hkdfInfo = []byte("sessiond record seal v1")

// Errors returned by Open.
var (
	ErrShortCiphertext  = errors.New("seal: ciphertext too short")
	ErrUnknownAlgorithm = errors.New("seal: unknown algorithm")
)

// tags prefix sealed output.
const (
	tagAESGCM   byte = 1
	tagChaCha20 byte = 2
)

// ParseAlgorithm validates an algorithm name. The empty string means Auto.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case AESGCM, ChaCha20, Auto:
		return a, nil
	case "":
		return Auto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Sealer seals and opens records. It is safe for concurrent use.
type Sealer struct {
	alg   Algorithm
	aeads map[byte]cipher.AEAD
	tag   byte
}

// New derives a key from secret and returns a Sealer writing with alg.
func New(secret []byte, alg Algorithm) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("seal: empty secret")
	}
	alg, err := ParseAlgorithm(string(alg))
	if err != nil {
		return nil, err
	}
	if alg == Auto {
		alg = preferred()
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	chacha, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	s := &Sealer{
		alg:   alg,
		aeads: map[byte]cipher.AEAD{tagAESGCM: gcm, tagChaCha20: chacha},
		tag:   tagAESGCM,
	}
	if alg == ChaCha20 {
		s.tag = tagChaCha20
	}
	return s, nil
}

// Algorithm returns the algorithm used by Seal.
func (s *Sealer) Algorithm() Algorithm {
	return s.alg
}

// Seal encrypts plaintext bound to additionalData.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	aead := s.aeads[s.tag]
	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = s.tag
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(out, nonce, plaintext, additionalData), nil
}

// Open decrypts a value produced by Seal with the same secret.
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrShortCiphertext
	}
	aead, ok := s.aeads[sealed[0]]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownAlgorithm, sealed[0])
	}
	body := sealed[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	nonce, ciphertext := body[:aead.NonceSize()], body[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, additionalData)
}

// preferred reports the algorithm with hardware support on this platform.
// On amd64 and arm64, crypto/aes uses AES-NI or the ARM crypto extensions.
func preferred() Algorithm {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return AESGCM
	default:
		return ChaCha20
	}
}
