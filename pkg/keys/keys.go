// Package keys manages the signing keys and did:web documents backing
// AT Protocol agent identities. The rest of the system consumes keys
// only through the Signer interface.
package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// Signer is the opaque signing capability handed to the bridge core.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// KeyPair wraps a P-256 ECDSA keypair.
type KeyPair struct {
	priv *ecdsa.PrivateKey
}

// Generate creates a fresh P-256 keypair.
func Generate() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generating keypair: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// Load reads a PKCS#8 PEM private key from path.
func Load(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: reading %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keys: %s contains no PEM block", path)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parsing %s: %w", path, err)
	}

	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keys: %s is not an ECDSA key", path)
	}
	if priv.Curve != elliptic.P256() {
		return nil, fmt.Errorf("keys: %s uses curve %s, want P-256", path, priv.Curve.Params().Name)
	}

	return &KeyPair{priv: priv}, nil
}

// Save writes the private key as PKCS#8 PEM, readable only by the owner.
func (k *KeyPair) Save(path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return fmt.Errorf("keys: encoding private key: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// Sign hashes data with SHA-256 and returns an ASN.1 DER signature.
func (k *KeyPair) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, k.priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("keys: signing: %w", err)
	}
	return sig, nil
}

// Verify checks a signature produced by Sign.
func (k *KeyPair) Verify(data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(&k.priv.PublicKey, digest[:], sig)
}

// JWK is the public key in JSON Web Key form, as embedded in did:web
// documents.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// PublicJWK renders the public key coordinates base64url-encoded.
func (k *KeyPair) PublicJWK() JWK {
	pub := k.priv.PublicKey

	x := pub.X.FillBytes(make([]byte, 32))
	y := pub.Y.FillBytes(make([]byte, 32))

	return JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}
