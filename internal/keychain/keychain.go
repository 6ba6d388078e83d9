// Package keychain owns the provider's signing key material and the
// startup sequence that brings persisted provider state to a usable
// condition.
package keychain

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const signingKeyBits = 2048

// Keychain holds the provider's signing keys as JWKs. The id token and
// access token keys are distinct so either can be rotated alone.
type Keychain struct {
	IDTokenKey     jose.JSONWebKey `json:"id_token_signing_key"`
	AccessTokenKey jose.JSONWebKey `json:"access_token_signing_key"`
}

// Generate creates a fresh keychain with RS256 RSA keys. Key IDs are the
// RFC 7638 thumbprints of the public keys.
func Generate() (*Keychain, error) {
	idKey, err := generateSigningKey()
	if err != nil {
		return nil, err
	}
	accessKey, err := generateSigningKey()
	if err != nil {
		return nil, err
	}
	return &Keychain{
		IDTokenKey:     *idKey,
		AccessTokenKey: *accessKey,
	}, nil
}

func generateSigningKey() (*jose.JSONWebKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	key := &jose.JSONWebKey{
		Key:       priv,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("computing key thumbprint: %w", err)
	}
	key.KeyID = base64.RawURLEncoding.EncodeToString(thumb)
	return key, nil
}

// Validate checks that both keys carry usable private material.
func (k *Keychain) Validate() error {
	for _, key := range []struct {
		name string
		jwk  jose.JSONWebKey
	}{
		{"id token signing key", k.IDTokenKey},
		{"access token signing key", k.AccessTokenKey},
	} {
		if !key.jwk.Valid() {
			return fmt.Errorf("keychain: %s is invalid", key.name)
		}
		if key.jwk.IsPublic() {
			return fmt.Errorf("keychain: %s is missing private material", key.name)
		}
	}
	return nil
}

// PublicJWKS returns the publishable key set, private material stripped.
func (k *Keychain) PublicJWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			k.IDTokenKey.Public(),
			k.AccessTokenKey.Public(),
		},
	}
}

// IDTokenSigner returns the private key that signs id tokens.
func (k *Keychain) IDTokenSigner() (*rsa.PrivateKey, error) {
	priv, ok := k.IDTokenKey.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keychain: id token key is not an rsa private key")
	}
	return priv, nil
}

// AccessTokenSigner returns the private key that signs access tokens.
func (k *Keychain) AccessTokenSigner() (*rsa.PrivateKey, error) {
	priv, ok := k.AccessTokenKey.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keychain: access token key is not an rsa private key")
	}
	return priv, nil
}

// Keyfunc resolves the verification key for a token signed with either
// provider key, matching on the kid header when present.
func (k *Keychain) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
	}
	kid, _ := token.Header["kid"].(string)
	for _, key := range []jose.JSONWebKey{k.IDTokenKey, k.AccessTokenKey} {
		if kid == "" || key.KeyID == kid {
			return key.Public().Key, nil
		}
	}
	return nil, fmt.Errorf("no signing key matches kid %q", kid)
}
