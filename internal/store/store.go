/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/
/*
Notice: This file has been modified for qcert usage.
*/

// Package store defines the certificate repository contract (C5) and ships
// an in-memory reference implementation for tests. Production persistence
// (SQL, KV) is an external collaborator per spec §1 — this package only
// fixes the interface and its contract.
package store

import (
	"sync"
	"time"

	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/qcerr"
)

// CertificateDetails is one row of the certificate store, matching the
// Certificate entity fields from spec §3.
type CertificateDetails struct {
	KeyID            string
	AuthorityKeyID   string
	SerialNumber     []byte // 20-byte positive DER-ready integer bytes
	Subject          string
	Thumbprint       []byte // SHA-1 of the full DER certificate
	Algorithm        string
	EncodedCert      []byte // DER
	PrivateKeyPEM    []byte // optional; nil once discarded
	IsCA             bool
	Revoked          bool
	RevocationDate   *time.Time
	RevocationReason int // RFC 5280 CRLReason code; meaningful only when Revoked
	CreatedDate      time.Time
	Metadata         map[string]string
}

// RevokedEntry is one row of the revocation list view.
type RevokedEntry struct {
	SerialNumber   []byte
	RevocationDate time.Time
	Reason         int // RFC 5280 CRLReason code, e.g. ocsp.KeyCompromise
}

// ListFilter narrows the List query. Zero values mean "no filter".
type ListFilter struct {
	NotBefore      *time.Time
	Revoked        *bool
	AuthorityKeyID string
}

// Repository is the certificate repository contract (spec §4.5). A
// production implementation backs this with a transactional database; the
// in-memory Memory type below exists for tests and single-process use.
type Repository interface {
	Add(details CertificateDetails) (CertificateDetails, error)
	GetByID(keyID string) (*CertificateDetails, error)
	List(filter ListFilter) ([]CertificateDetails, error)
	RevocationList(notBefore *time.Time) ([]RevokedEntry, error)
	// Revoke marks keyID revoked with an RFC 5280 CRLReason code (e.g.
	// ocsp.KeyCompromise from golang.org/x/crypto/ocsp).
	Revoke(keyID string, reason int) error
	// NextCRLNumber returns a monotonically increasing counter for CRL
	// generation (spec §4.6); each call returns a new, higher value.
	NextCRLNumber() (int64, error)
}

// Memory is an in-memory Repository guarded by a single mutex, standing in
// for the "linearizable reads, serialized writes" contract spec §5 expects
// from the real transactional store.
type Memory struct {
	mu        sync.Mutex
	byKeyID   map[string]*CertificateDetails
	crlNumber int64
	clock     clock.Clock
}

// NewMemory returns an empty in-memory repository using the system clock to
// stamp RevocationDate.
func NewMemory() *Memory {
	return NewMemoryWithClock(clock.System{})
}

// NewMemoryWithClock returns an empty in-memory repository using clk to
// stamp RevocationDate, so tests can advance time deterministically instead
// of reading time.Now (spec §9 "Clock abstraction", the same DI rule
// internal/ca and internal/crl follow).
func NewMemoryWithClock(clk clock.Clock) *Memory {
	return &Memory{byKeyID: make(map[string]*CertificateDetails), clock: clk}
}

// Add inserts a new certificate row, failing with KindDuplicateKeyID if the
// key ID is already present.
func (m *Memory) Add(details CertificateDetails) (CertificateDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKeyID[details.KeyID]; exists {
		return CertificateDetails{}, qcerr.New(qcerr.KindDuplicateKeyID, "key id already exists: "+details.KeyID)
	}
	cp := details
	m.byKeyID[details.KeyID] = &cp
	return cp, nil
}

// GetByID returns the certificate, or nil if absent or revoked (spec §4.5
// contract: get_by_id hides revoked entries).
func (m *Memory) GetByID(keyID string) (*CertificateDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byKeyID[keyID]
	if !ok || row.Revoked {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

// List returns rows matching filter, including revoked ones when requested.
func (m *Memory) List(filter ListFilter) ([]CertificateDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CertificateDetails
	for _, row := range m.byKeyID {
		if filter.NotBefore != nil && row.CreatedDate.Before(*filter.NotBefore) {
			continue
		}
		if filter.Revoked != nil && row.Revoked != *filter.Revoked {
			continue
		}
		if filter.AuthorityKeyID != "" && row.AuthorityKeyID != filter.AuthorityKeyID {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

// RevocationList returns {serial, revocation_date} for every revoked row.
func (m *Memory) RevocationList(notBefore *time.Time) ([]RevokedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RevokedEntry
	for _, row := range m.byKeyID {
		if !row.Revoked || row.RevocationDate == nil {
			continue
		}
		if notBefore != nil && row.RevocationDate.Before(*notBefore) {
			continue
		}
		out = append(out, RevokedEntry{SerialNumber: row.SerialNumber, RevocationDate: *row.RevocationDate, Reason: row.RevocationReason})
	}
	return out, nil
}

// Revoke marks a certificate revoked with reason. Idempotent: revoking an
// already-revoked certificate is a no-op (the original reason is kept),
// per spec §4.5.
func (m *Memory) Revoke(keyID string, reason int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byKeyID[keyID]
	if !ok {
		return qcerr.New(qcerr.KindNotFound, "unknown key id: "+keyID)
	}
	if row.Revoked {
		return nil
	}
	now := m.clock.Now()
	row.Revoked = true
	row.RevocationDate = &now
	row.RevocationReason = reason
	return nil
}

// NextCRLNumber returns the next monotonically increasing CRL number.
func (m *Memory) NextCRLNumber() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crlNumber++
	return m.crlNumber, nil
}
