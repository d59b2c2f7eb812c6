package models

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/signing"
)

type envelopeClaims struct {
	Msg Message `json:"msg"`
	jwt.RegisteredClaims
}

// Seal signs msg as a compact EdDSA JWS. Identifier, verkey and a missing id are filled in from
// the signer.
func Seal(signer *signing.Signer, msg *Message, now time.Time) ([]byte, error) {
	msg.Identifier = signer.Identifier()
	msg.Verkey = signer.Verkey()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, envelopeClaims{
		Msg: *msg,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   msg.Identifier,
			ID:       msg.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	})
	token.Header["kid"] = msg.Verkey
	signed, err := token.SignedString(signer.PrivateKey())
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

// Peek decodes an envelope without checking its signature. Only use the result to decide which
// verkey to verify against.
func Peek(raw []byte) (*Message, error) {
	var claims envelopeClaims
	if _, _, err := jwt.NewParser().ParseUnverified(string(raw), &claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProtocol, "malformed envelope")
	}
	if claims.Msg.Type == "" || claims.Msg.Identifier == "" {
		return nil, dErrors.New(dErrors.CodeProtocol, "envelope carries no message")
	}
	return &claims.Msg, nil
}

// Open verifies an envelope against verkey and returns its message.
func Open(raw []byte, verkey string) (*Message, error) {
	pub, err := signing.DecodeVerkey(verkey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "verkey is malformed")
	}
	var claims envelopeClaims
	_, err = jwt.ParseWithClaims(string(raw), &claims, func(*jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, dErrors.Wrap(err, dErrors.CodeProtocol, "malformed envelope")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "envelope signature does not verify")
	}
	if claims.Issuer != claims.Msg.Identifier {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "envelope issuer does not match message identifier")
	}
	return &claims.Msg, nil
}
