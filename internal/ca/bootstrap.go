package ca

import (
	"golang.org/x/sync/singleflight"

	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/internal/store"
)

// Bootstrapper coalesces concurrent root-CA creation so that callers racing
// to initialize a fresh repository observe a single winner's CA, per spec
// §5's "certificate bootstrap is single-flight" requirement.
type Bootstrapper struct {
	manager *Manager
	repo    store.Repository
	group   singleflight.Group
}

// NewBootstrapper returns a Bootstrapper that creates root CAs with mgr and
// persists/reads them through repo.
func NewBootstrapper(mgr *Manager, repo store.Repository) *Bootstrapper {
	return &Bootstrapper{manager: mgr, repo: repo}
}

// EnsureRootCA returns the existing root CA for issuerDomain if one is
// already stored (identified by the metadata key "issuerDomain"), otherwise
// creates and persists one. Concurrent callers for the same issuerDomain
// share a single in-flight creation; losers observe the winner's result.
func (b *Bootstrapper) EnsureRootCA(issuerDomain string) (Issued, error) {
	v, err, _ := b.group.Do(issuerDomain, func() (interface{}, error) {
		existing, err := b.repo.List(store.ListFilter{})
		if err != nil {
			return Issued{}, qcerr.Wrap(qcerr.KindRepositoryUnavailable, err, "failed to list existing certificates during root CA bootstrap")
		}
		for _, d := range existing {
			if d.IsCA && d.Metadata["issuerDomain"] == issuerDomain {
				cert, key, parseErr := parseIssuedDetails(d)
				if parseErr != nil {
					return Issued{}, parseErr
				}
				return Issued{Details: d, Cert: cert, Key: key}, nil
			}
		}

		issued, err := b.manager.CreateRootCA(issuerDomain)
		if err != nil {
			return Issued{}, err
		}
		if _, err := b.repo.Add(issued.Details); err != nil {
			return Issued{}, qcerr.Wrap(qcerr.KindRepositoryUnavailable, err, "failed to persist bootstrapped root CA")
		}
		return issued, nil
	})
	if err != nil {
		return Issued{}, err
	}
	return v.(Issued), nil
}
