// Package signing holds the Ed25519 key material used by wallets and agents, the cryptonym
// derivation for identifiers, and the canonical serialization every signature covers.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// identifierLen is the number of verkey bytes a cryptonym is derived from.
const identifierLen = 16

// Signer holds an identity's signing key.
type Signer struct {
	identifier string
	verkey     string
	priv       ed25519.PrivateKey
}

// GenerateSigner creates a signer from fresh randomness.
func GenerateSigner() (*Signer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return NewSigner(seed)
}

// NewSigner derives a signer from a 32-byte seed. The identifier is the cryptonym of the verkey.
func NewSigner(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	verkey := base58.Encode(pub)
	return &Signer{
		identifier: base58.Encode(pub[:identifierLen]),
		verkey:     verkey,
		priv:       priv,
	}, nil
}

// SeedFromString pads or truncates s into a seed. Used for deterministic genesis and test keys.
func SeedFromString(s string) []byte {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, s)
	return seed
}

func (s *Signer) Identifier() string { return s.identifier }

func (s *Signer) Verkey() string { return s.verkey }

// PrivateKey exposes the key for envelope signing libraries.
func (s *Signer) PrivateKey() ed25519.PrivateKey { return s.priv }

// Sign returns the base58 signature over msg.
func (s *Signer) Sign(msg []byte) string {
	return base58.Encode(ed25519.Sign(s.priv, msg))
}

// SignCanonical signs the canonical serialization of v.
func (s *Signer) SignCanonical(v any) (string, error) {
	msg, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return s.Sign(msg), nil
}

// DecodeVerkey parses a base58 verkey.
func DecodeVerkey(verkey string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(verkey)
	if err != nil {
		return nil, fmt.Errorf("decode verkey: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verkey must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// IdentifierFromVerkey returns the cryptonym of verkey.
func IdentifierFromVerkey(verkey string) (string, error) {
	pub, err := DecodeVerkey(verkey)
	if err != nil {
		return "", err
	}
	return base58.Encode(pub[:identifierLen]), nil
}

// IsCryptonym reports whether identifier is derived from verkey.
func IsCryptonym(identifier, verkey string) bool {
	derived, err := IdentifierFromVerkey(verkey)
	return err == nil && derived == identifier
}

// Verify checks a base58 signature over msg against a base58 verkey.
func Verify(verkey string, msg []byte, signature string) error {
	pub, err := DecodeVerkey(verkey)
	if err != nil {
		return err
	}
	sig, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// VerifyCanonical checks a signature over the canonical serialization of v.
func VerifyCanonical(verkey string, v any, signature string) error {
	msg, err := Canonical(v)
	if err != nil {
		return err
	}
	return Verify(verkey, msg, signature)
}

// Canonical serializes v as JSON with lexicographically ordered object keys.
func Canonical(v any) ([]byte, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(first, &generic); err != nil {
		return nil, fmt.Errorf("canonical unmarshal: %w", err)
	}
	return json.Marshal(generic)
}

// SHA256Hex returns the lowercase hex digest of data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
