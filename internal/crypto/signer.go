package crypto

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// Signer signs ledger submissions with the executor authority keypair.
type Signer struct {
	priv ed25519.PrivateKey
	pub  string // base58-encoded public key
}

// NewSigner derives the keypair from a 32-byte ed25519 seed.
func NewSigner(seed []byte) *Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		priv: priv,
		pub:  base58.Encode(priv.Public().(ed25519.PublicKey)),
	}
}

// PublicKey returns the base58-encoded authority public key.
func (s *Signer) PublicKey() string {
	return s.pub
}

// SignBase58 signs msg and returns the base58-encoded signature.
func (s *Signer) SignBase58(msg []byte) string {
	return base58.Encode(ed25519.Sign(s.priv, msg))
}

// Verify checks a base58 signature over msg against this signer's public key.
func (s *Signer) Verify(msg []byte, sigB58 string) bool {
	sig, err := base58.Decode(sigB58)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.priv.Public().(ed25519.PublicKey), msg, sig)
}
