// Package secretstore encrypts the operator's session cookies and request
// headers at rest, where the original persisted them in plaintext
// (cookie.json). A passphrase-derived key (golang.org/x/crypto/scrypt)
// feeds AES-256-GCM; there is no example in the pack for this exact wire
// format, so the on-disk layout (length-prefixed salt, length-prefixed
// nonce, then the ciphertext; the scrypt cost parameters are fixed
// constants and are not stored) is designed directly from the scrypt and
// crypto/cipher package docs.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. N must be a power of two; these match the
// scrypt package's own recommended interactive-login values.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256
	saltLen      = 16
)

// Identity is the plaintext blob protected at rest: the cookie jar
// contents and configured request headers.
type Identity struct {
	Cookie map[string]string `json:"cookie"`
	Header map[string]string `json:"header"`
}

// Save encrypts identity with a key derived from passphrase and writes it
// to path. Layout: [2-byte salt len][salt][4-byte nonce len][nonce][ciphertext].
func Save(path, passphrase string, identity Identity) error {
	plaintext, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 2+len(salt)+4+len(nonce)+len(ciphertext))
	out = binary.BigEndian.AppendUint16(out, uint16(len(salt)))
	out = append(out, salt...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(nonce)))
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return os.WriteFile(path, out, 0o600)
}

// Load decrypts the identity blob at path using passphrase.
func Load(path, passphrase string) (Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("read %s: %w", path, err)
	}

	r := &byteReader{buf: raw}
	saltLen, err := r.uint16()
	if err != nil {
		return Identity{}, err
	}
	salt, err := r.take(int(saltLen))
	if err != nil {
		return Identity{}, err
	}
	nonceLen, err := r.uint32()
	if err != nil {
		return Identity{}, err
	}
	nonce, err := r.take(int(nonceLen))
	if err != nil {
		return Identity{}, err
	}
	ciphertext := r.rest()

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return Identity{}, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Identity{}, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Identity{}, fmt.Errorf("new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("decrypt (wrong passphrase?): %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(plaintext, &identity); err != nil {
		return Identity{}, fmt.Errorf("unmarshal identity: %w", err)
	}
	return identity, nil
}

type byteReader struct {
	buf []byte
	pos int
}

var errShortBuffer = errors.New("secretstore: truncated identity file")

func (r *byteReader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *byteReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *byteReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) rest() []byte {
	return r.buf[r.pos:]
}
