// Package rsautil implements the raw, unpadded RSA operation used to
// unwrap the login block, plus startup keypair generation in the
// idiom of a conventional Go service (crypto/rsa keys with CRT
// precompute) even though the wire operation itself bypasses
// crypto/rsa's padded APIs entirely.
package rsautil

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"
)

// KeyBits is the modulus size generated at startup.
const KeyBits = 1024

// KeyPair holds the server's RSA keypair for the login handshake.
type KeyPair struct {
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh RSA keypair with the standard public
// exponent and precomputes CRT parameters, matching how a long-running
// service prepares a key for repeated raw modpow use rather than a
// single padded decrypt.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("rsautil: generate key: %w", err)
	}
	priv.Precompute()
	return &KeyPair{Private: priv}, nil
}

// Modulus returns the public modulus N.
func (k *KeyPair) Modulus() *big.Int { return k.Private.N }

// Exponent returns the public exponent e.
func (k *KeyPair) Exponent() int { return k.Private.E }

// Unwrap decrypts a raw, unpadded RSA block: block^d mod n, computed
// directly against math/big rather than through crypto/rsa's padded
// decrypt entry points, since the login block carries no PKCS padding
// for those to check. Uses CRT when precomputed values are available,
// falling back to the plain exponentiation otherwise.
func Unwrap(priv *rsa.PrivateKey, block []byte) ([]byte, error) {
	keySize := (priv.N.BitLen() + 7) / 8
	if len(block) != keySize {
		return nil, fmt.Errorf("rsautil: block size %d does not match key size %d", len(block), keySize)
	}

	c := new(big.Int).SetBytes(block)
	if c.Cmp(priv.N) >= 0 {
		return nil, fmt.Errorf("rsautil: block out of range for modulus")
	}

	var m *big.Int
	if priv.Precomputed.Dp != nil && priv.Precomputed.Dq != nil && priv.Precomputed.Qinv != nil && len(priv.Primes) >= 2 {
		p, q := priv.Primes[0], priv.Primes[1]
		m1 := new(big.Int).Exp(c, priv.Precomputed.Dp, p)
		m2 := new(big.Int).Exp(c, priv.Precomputed.Dq, q)

		h := new(big.Int).Sub(m1, m2)
		h.Mul(h, priv.Precomputed.Qinv)
		h.Mod(h, p)

		m = new(big.Int).Mul(h, q)
		m.Add(m, m2)
	} else {
		m = new(big.Int).Exp(c, priv.D, priv.N)
	}

	return minimalBytes(m, keySize), nil
}

// Wrap applies the public operation block^e mod n, used in tests to
// produce ciphertext a matching Unwrap call should recover.
func Wrap(pub *rsa.PublicKey, block []byte) []byte {
	keySize := (pub.N.BitLen() + 7) / 8
	m := new(big.Int).SetBytes(block)
	e := big.NewInt(int64(pub.E))
	c := new(big.Int).Exp(m, e, pub.N)
	return minimalBytes(c, keySize)
}

// minimalBytes re-emits v as big-endian bytes, left-padded to width
// when the natural encoding is shorter.
func minimalBytes(v *big.Int, width int) []byte {
	raw := v.Bytes()
	if len(raw) >= width {
		return raw
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	return out
}
