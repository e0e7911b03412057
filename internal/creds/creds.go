/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/
/*
Notice: This file has been modified for qcert usage.
*/

// Package creds narrows the bridge cryptosuitebridge.go exposes
// (core.CryptoSuite / core.Key) down to exactly the two signing-credential
// interfaces the HTTP-signature engine needs (spec §4.9): a signing
// credential for outbound signing, and a set of trusted keys for inbound
// fallback validation.
package creds

import (
	"crypto"
	"crypto/x509"
)

// SigningCredential is the key material and algorithm the pipeline signs
// outbound responses with.
type SigningCredential struct {
	KeyID     string
	Signer    crypto.Signer
	Algorithm string // e.g. "rsa-sha256", "rsa-sha512"
	Cert      *x509.Certificate
}

// SigningCredentialStore returns the process's outbound signing credential.
// Required for response signing (spec §4.9); a nil return with a nil error
// means no credential is configured and response signing stays disabled.
type SigningCredentialStore interface {
	SigningCredential() (*SigningCredential, error)
}

// SecurityKey is a trusted public key candidate for inbound signature
// verification.
type SecurityKey struct {
	KeyID     string
	PublicKey crypto.PublicKey
	Cert      *x509.Certificate // optional, present when sourced from a store of certs
}

// ValidationKeyStore returns the set of keys trusted for inbound signature
// verification when the request does not carry its own certificate (spec
// §4.9, §4.8 step 3).
type ValidationKeyStore interface {
	ValidationKeys() ([]SecurityKey, error)
}

// StaticStore is an in-memory ValidationKeyStore/SigningCredentialStore,
// the default implementation spec §4.9 describes as "wraps a loaded PKCS#12
// / PEM key pair".
type StaticStore struct {
	signing *SigningCredential
	keys    []SecurityKey
}

// NewStaticStore builds a StaticStore with a fixed signing credential
// (optional, pass nil to disable outbound signing) and a fixed set of
// trusted keys.
func NewStaticStore(signing *SigningCredential, keys []SecurityKey) *StaticStore {
	return &StaticStore{signing: signing, keys: keys}
}

// SigningCredential implements SigningCredentialStore.
func (s *StaticStore) SigningCredential() (*SigningCredential, error) { return s.signing, nil }

// ValidationKeys implements ValidationKeyStore.
func (s *StaticStore) ValidationKeys() ([]SecurityKey, error) { return s.keys, nil }
