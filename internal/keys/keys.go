// Package keys implements the sign/verify oracle required by the
// transaction layer. §1 treats the exact signature primitive as an
// external collaborator (the source uses an EdDSA/lamport-style scheme);
// this module substitutes go-ethereum's secp256k1 ECDSA, the primitive the
// teacher repo already imports directly in core/virtual_machine.go.
package keys

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyPair is a signer's secp256k1 keypair.
type KeyPair struct {
	Private *ecdsa.PrivateKey
}

// Generate returns a fresh keypair.
func Generate() (*KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &KeyPair{Private: priv}, nil
}

// Address returns the signer identity carried on a transaction: the
// compressed public key.
func (k *KeyPair) Address() []byte {
	return crypto.CompressPubkey(&k.Private.PublicKey)
}

// Sign signs a 32-byte message digest, returning the raw R||S||V signature.
func (k *KeyPair) Sign(digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], k.Private)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether signature was produced over digest by the holder
// of address (a compressed public key as returned by Address).
func Verify(address []byte, digest [32]byte, signature []byte) bool {
	if len(signature) != 65 {
		return false
	}
	pub, err := crypto.SigToPub(digest[:], signature)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.CompressPubkey(pub), address)
}
