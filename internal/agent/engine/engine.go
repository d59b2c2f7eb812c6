// Package engine is a transparent claim engine. Issuers sign attribute sets with ed25519. The
// holder commits to an ed25519 key derived from its blinding secret, and a proof signs the
// verifier's nonce with that key, so a presented proof cannot be replayed under another nonce.
//
// It reveals every attribute of each presented credential and provides no unlinkability.
// Deployments that need anonymous credentials plug a zero-knowledge engine in behind the same
// methods.
package engine

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"idledger/internal/agent/models"
	"idledger/internal/wallet"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/signing"
)

// PublicKey is the issuer key published on the ledger.
type PublicKey struct {
	Verkey string `json:"verkey"`
}

// SecretKey never leaves the issuer.
type SecretKey struct {
	Seed string `json:"seed"`
}

type commitment struct {
	Digest string `json:"digest"`
}

type blinding struct {
	Secret string `json:"secret"`
}

type signedClaim struct {
	Attributes map[string]string `json:"attributes"`
	Commitment string            `json:"commitment"`
}

// credential keeps Secret only while it sits in the wallet. Presented credentials carry Holder
// and Binding instead.
type credential struct {
	signedClaim
	Verkey    string `json:"verkey"`
	Signature string `json:"signature"`
	Secret    string `json:"secret,omitempty"`
	Holder    string `json:"holder,omitempty"`
	Binding   string `json:"binding,omitempty"`
}

// presentation is what the holder key signs for each presented credential.
type presentation struct {
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type proof struct {
	Nonce       string             `json:"nonce"`
	Credentials []credential       `json:"credentials"`
	Predicates  []models.Predicate `json:"predicates,omitempty"`
}

// Engine is stateless.
type Engine struct{}

func New() *Engine { return &Engine{} }

// GenerateKeys creates an issuer key pair.
func GenerateKeys() (pub, secret json.RawMessage, err error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("generate issuer seed: %w", err)
	}
	return KeysFromSeed(seed)
}

// KeysFromSeed derives an issuer key pair from a 32-byte seed.
func KeysFromSeed(seed []byte) (pub, secret json.RawMessage, err error) {
	s, err := signing.NewSigner(seed)
	if err != nil {
		return nil, nil, err
	}
	if pub, err = json.Marshal(PublicKey{Verkey: s.Verkey()}); err != nil {
		return nil, nil, err
	}
	if secret, err = json.Marshal(SecretKey{Seed: base64.StdEncoding.EncodeToString(seed)}); err != nil {
		return nil, nil, err
	}
	return pub, secret, nil
}

func (e *Engine) Commit(_ context.Context, issuerPublicKey json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	if _, err := decodePublic(issuerPublicKey); err != nil {
		return nil, nil, err
	}
	secret := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, nil, fmt.Errorf("generate blinding secret: %w", err)
	}
	holder, err := signing.NewSigner(secret)
	if err != nil {
		return nil, nil, err
	}
	c, err := json.Marshal(commitment{Digest: holderDigest(holder.Verkey())})
	if err != nil {
		return nil, nil, err
	}
	b, err := json.Marshal(blinding{Secret: base64.StdEncoding.EncodeToString(secret)})
	if err != nil {
		return nil, nil, err
	}
	return c, b, nil
}

func (e *Engine) IssueCredential(_ context.Context, commitmentRaw json.RawMessage, attributes map[string]string,
	issuerPublicKey, issuerSecretKey json.RawMessage) (json.RawMessage, error) {
	var c commitment
	if len(commitmentRaw) > 0 {
		if err := json.Unmarshal(commitmentRaw, &c); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "commitment is malformed")
		}
	}
	if c.Digest == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "claim request carries no commitment")
	}
	pub, err := decodePublic(issuerPublicKey)
	if err != nil {
		return nil, err
	}
	signer, err := decodeSecret(issuerSecretKey)
	if err != nil {
		return nil, err
	}
	if signer.Verkey() != pub.Verkey {
		return nil, dErrors.New(dErrors.CodeInternal, "issuer secret key does not match its public key")
	}

	claim := signedClaim{Attributes: attributes, Commitment: c.Digest}
	sig, err := signer.SignCanonical(claim)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	return json.Marshal(credential{signedClaim: claim, Verkey: pub.Verkey, Signature: sig})
}

// ExtendCredential binds the holder's blinding secret to an issued credential.
func (e *Engine) ExtendCredential(_ context.Context, material, blindingRaw json.RawMessage) (json.RawMessage, error) {
	var cred credential
	if err := json.Unmarshal(material, &cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProtocol, "credential is malformed")
	}
	var b blinding
	if err := json.Unmarshal(blindingRaw, &b); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "blinding is malformed")
	}
	holder, err := holderFromSecret(b.Secret)
	if err != nil {
		return nil, err
	}
	if holderDigest(holder.Verkey()) != cred.Commitment {
		return nil, dErrors.New(dErrors.CodeProtocol, "credential was issued against another commitment")
	}
	if err := signing.VerifyCanonical(cred.Verkey, cred.signedClaim, cred.Signature); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "credential signature does not verify")
	}
	cred.Secret = b.Secret
	return json.Marshal(cred)
}

// BuildProof presents every credential holding a requested attribute. Predicates are checked
// here and again by the verifier.
func (e *Engine) BuildProof(_ context.Context, request models.ProofRequest, credentials []wallet.Credential,
	nonce string) (json.RawMessage, error) {
	p := proof{Nonce: nonce, Predicates: request.Predicates}
	covered := make(map[string]bool)
	for _, c := range credentials {
		var cred credential
		if err := json.Unmarshal(c.Material, &cred); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored credential is malformed")
		}
		if cred.Secret == "" {
			return nil, dErrors.Newf(dErrors.CodeInternal, "credential %s %s was never extended", c.Name, c.Version)
		}
		holder, err := holderFromSecret(cred.Secret)
		if err != nil {
			return nil, err
		}
		binding, err := holder.SignCanonical(presentation{Nonce: nonce, Signature: cred.Signature})
		if err != nil {
			return nil, fmt.Errorf("sign presentation: %w", err)
		}
		cred.Secret = ""
		cred.Holder, cred.Binding = holder.Verkey(), binding
		p.Credentials = append(p.Credentials, cred)
		for name := range cred.Attributes {
			covered[name] = true
		}
	}
	for _, attr := range request.Attributes {
		if !covered[attr] {
			return nil, dErrors.Newf(dErrors.CodeClaimUnavailable, "no credential holds %q", attr)
		}
	}
	for _, pred := range request.Predicates {
		if !satisfied(p.Credentials, pred) {
			return nil, dErrors.Newf(dErrors.CodeClaimUnavailable, "predicate %s %s %d is not satisfied",
				pred.Attribute, pred.Type, pred.Value)
		}
	}
	return json.Marshal(p)
}

// VerifyProof checks that every presented credential was signed by one of issuerPublicKeys,
// belongs to the presenter, and agrees with the revealed values.
func (e *Engine) VerifyProof(_ context.Context, issuerPublicKeys []json.RawMessage, proofRaw json.RawMessage,
	nonce string, revealed map[string]string) (bool, error) {
	var p proof
	if err := json.Unmarshal(proofRaw, &p); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeProtocol, "proof is malformed")
	}
	if p.Nonce != nonce || len(p.Credentials) == 0 {
		return false, nil
	}
	trusted := make(map[string]bool, len(issuerPublicKeys))
	for _, raw := range issuerPublicKeys {
		pub, err := decodePublic(raw)
		if err != nil {
			return false, err
		}
		trusted[pub.Verkey] = true
	}

	values := make(map[string]string)
	for _, cred := range p.Credentials {
		if !trusted[cred.Verkey] {
			return false, nil
		}
		if err := signing.VerifyCanonical(cred.Verkey, cred.signedClaim, cred.Signature); err != nil {
			return false, nil
		}
		if cred.Holder == "" || holderDigest(cred.Holder) != cred.Commitment {
			return false, nil
		}
		if err := signing.VerifyCanonical(cred.Holder, presentation{Nonce: nonce, Signature: cred.Signature}, cred.Binding); err != nil {
			return false, nil
		}
		for k, v := range cred.Attributes {
			values[k] = v
		}
	}
	for k, v := range revealed {
		if got, ok := values[k]; !ok || got != v {
			return false, nil
		}
	}
	for _, pred := range p.Predicates {
		if !satisfied(p.Credentials, pred) {
			return false, nil
		}
	}
	return true, nil
}

func satisfied(creds []credential, pred models.Predicate) bool {
	for _, c := range creds {
		raw, ok := c.Attributes[pred.Attribute]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		switch pred.Type {
		case ">=", "GE":
			return v >= pred.Value
		case ">", "GT":
			return v > pred.Value
		case "<=", "LE":
			return v <= pred.Value
		case "<", "LT":
			return v < pred.Value
		}
		return false
	}
	return false
}

func holderDigest(verkey string) string { return signing.SHA256Hex([]byte(verkey)) }

func holderFromSecret(encoded string) (*signing.Signer, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "blinding is malformed")
	}
	holder, err := signing.NewSigner(secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "blinding is malformed")
	}
	return holder, nil
}

func decodePublic(raw json.RawMessage) (*PublicKey, error) {
	var pub PublicKey
	if err := json.Unmarshal(raw, &pub); err != nil || pub.Verkey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer public key is malformed")
	}
	if _, err := signing.DecodeVerkey(pub.Verkey); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "issuer public key is malformed")
	}
	return &pub, nil
}

func decodeSecret(raw json.RawMessage) (*signing.Signer, error) {
	var sk SecretKey
	if err := json.Unmarshal(raw, &sk); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issuer secret key is malformed")
	}
	seed, err := base64.StdEncoding.DecodeString(sk.Seed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issuer secret key is malformed")
	}
	return signing.NewSigner(seed)
}
