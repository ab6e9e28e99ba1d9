package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"dagledger/errs"
)

// Verifier checks transaction signatures. The core treats signature
// bytes as opaque until this collaborator validates them.
type Verifier interface {
	Verify(publicKey string, message, signature []byte) error
}

// KeyPair signs on behalf of a sender. Public keys travel as hex strings.
type KeyPair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(errs.ErrCrypto, err.Error())
	}
	return &KeyPair{pub: pub, priv: priv}, nil
}

// KeyPairFromSeed rebuilds a key pair from a 32-byte hex seed.
func KeyPairFromSeed(seedHex string) (*KeyPair, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.Wrap(errs.ErrCrypto, "invalid seed encoding")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Wrapf(errs.ErrCrypto, "seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

// PublicKey returns the hex-encoded public key.
func (k *KeyPair) PublicKey() string {
	return hex.EncodeToString(k.pub)
}

// SeedHex returns the hex-encoded private seed, for generate-keys output.
func (k *KeyPair) SeedHex() string {
	return hex.EncodeToString(k.priv.Seed())
}

// Sign signs a message with the pair's private key.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// Ed25519Verifier is the production Verifier.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(publicKey string, message, signature []byte) error {
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return errors.Wrap(errs.ErrCrypto, "invalid public key encoding")
	}
	if len(pub) != ed25519.PublicKeySize {
		return errors.Wrap(errs.ErrCrypto, "invalid public key length")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, signature) {
		return errors.Wrap(errs.ErrCrypto, "signature verification failed")
	}
	return nil
}

// Hash digests data with BLAKE2b-256.
func Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
