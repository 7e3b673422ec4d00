// Package crypto defines ashdb's pluggable page-encryption backend. The
// rest of the engine depends only on the Backend interface; callers that
// don't need encryption pass a NoopBackend and pay nothing.
package crypto

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
)

// Backend is the capability interface a pager wraps page bytes with
// before they cross the file boundary. Encrypt/Decrypt operate on whole
// pages. Hash is a BLAKE2b-256 digest helper; the pager does not call
// it, and checks page integrity with CRC32C whichever Backend is set.
type Backend interface {
	Encrypt(dbID [16]byte, pageID uint64, writeCounter uint64, plaintext []byte) ([]byte, error)
	Decrypt(dbID [16]byte, pageID uint64, writeCounter uint64, ciphertext []byte) ([]byte, error)
	Hash(data []byte) []byte
}

// NoopBackend passes pages through unmodified. Used when no Backend is
// configured.
type NoopBackend struct{}

func (NoopBackend) Encrypt(_ [16]byte, _, _ uint64, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}
func (NoopBackend) Decrypt(_ [16]byte, _, _ uint64, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}
func (NoopBackend) Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// ChaCha20Backend wraps every page in an XChaCha20-Poly1305 AEAD seal.
// The 24-byte nonce is derived deterministically as page_id(8) ||
// write_counter(8) || the first 4 bytes of db_id rather than drawn from
// a random source, so a
// page's nonce never repeats across writes as long as the write counter
// is monotonic and never reused after a crash — the pager is responsible
// for that guarantee.
type ChaCha20Backend struct {
	aead   interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewChaCha20Backend derives a 256-bit AEAD key from passphrase using
// BLAKE2b (grounded on golang.org/x/crypto's companion hash package to
// chacha20poly1305, avoiding a second KDF dependency).
func NewChaCha20Backend(passphrase []byte) (*ChaCha20Backend, error) {
	key := blake2b.Sum256(passphrase)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindCrypto, err, "crypto: initialize AEAD cipher")
	}
	return &ChaCha20Backend{aead: aead}, nil
}

func deriveNonce(size int, dbID [16]byte, pageID, writeCounter uint64) []byte {
	nonce := make([]byte, size)
	binary.LittleEndian.PutUint64(nonce[0:8], pageID)
	binary.LittleEndian.PutUint64(nonce[8:16], writeCounter)
	// mix in the low bytes of dbID for cross-database nonce separation
	// when pages from two databases are ever compared side by side.
	for i := 0; i < 4 && 16+i < size; i++ {
		nonce[16+i] = dbID[i]
	}
	return nonce
}

func (b *ChaCha20Backend) Encrypt(dbID [16]byte, pageID, writeCounter uint64, plaintext []byte) ([]byte, error) {
	nonce := deriveNonce(b.aead.NonceSize(), dbID, pageID, writeCounter)
	return b.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (b *ChaCha20Backend) Decrypt(dbID [16]byte, pageID, writeCounter uint64, ciphertext []byte) ([]byte, error) {
	nonce := deriveNonce(b.aead.NonceSize(), dbID, pageID, writeCounter)
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindCrypto, err, "crypto: AEAD authentication failed for page %d", pageID)
	}
	return plaintext, nil
}

func (b *ChaCha20Backend) Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// RandomBytes returns n cryptographically random bytes, for callers that
// need a random salt.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindCrypto, err, "crypto: read random bytes")
	}
	return b, nil
}
