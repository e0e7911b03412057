/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/
/*
Notice: This file has been modified for qcert usage.
*/

// Package qcerr defines the error taxonomy shared across the certificate
// builder and the HTTP signature engine, so the host HTTP layer can map a
// single Kind to a status code in one place.
package qcerr

import "github.com/pkg/errors"

// Kind identifies which failure mode produced an Error.
type Kind int

const (
	// KindUnknown is the zero value and should never be returned deliberately.
	KindUnknown Kind = iota
	KindDerEncode
	KindDerDecode
	KindInvalidRequest
	KindMissingSignature
	KindMissingDigest
	KindMissingCert
	KindBadCertificate
	KindDigestMismatch
	KindSignatureInvalid
	KindExpired
	KindDuplicateKeyID
	KindNotFound
	KindRepositoryUnavailable
	KindBodyTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindDerEncode:
		return "DerEncode"
	case KindDerDecode:
		return "DerDecode"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindMissingSignature:
		return "MissingSignature"
	case KindMissingDigest:
		return "MissingDigest"
	case KindMissingCert:
		return "MissingCert"
	case KindBadCertificate:
		return "BadCertificate"
	case KindDigestMismatch:
		return "DigestMismatch"
	case KindSignatureInvalid:
		return "SignatureInvalid"
	case KindExpired:
		return "Expired"
	case KindDuplicateKeyID:
		return "DuplicateKeyId"
	case KindNotFound:
		return "NotFound"
	case KindRepositoryUnavailable:
		return "RepositoryUnavailable"
	case KindBodyTooLarge:
		return "BodyTooLarge"
	default:
		return "Unknown"
	}
}

// Error is the result type every qcert operation returns instead of relying
// on a generic error interface that loses the Kind at the HTTP boundary.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

// New builds an Error of the given kind with a human-readable detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap attaches a Kind to an underlying cause, preserving it via pkg/errors
// so %+v still prints a stack trace in logs.
func Wrap(kind Kind, cause error, detail string) *Error {
	if cause == nil {
		return New(kind, detail)
	}
	return &Error{Kind: kind, Detail: detail, cause: errors.Wrap(cause, detail)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.Detail
}

// Unwrap lets errors.Is / errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether err is a qcerr.Error of the given Kind.
func Is(err error, kind Kind) bool {
	qe, ok := err.(*Error)
	return ok && qe != nil && qe.Kind == kind
}
