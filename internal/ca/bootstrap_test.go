package ca

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/store"
)

func TestEnsureRootCACreatesOnFirstCall(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)
	repo := store.NewMemory()
	b := NewBootstrapper(mgr, repo)

	issued, err := b.EnsureRootCA("ca.example.com")
	require.NoError(t, err)
	assert.True(t, issued.Cert.IsCA)

	rows, err := repo.List(store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, issued.Details.KeyID, rows[0].KeyID)
}

func TestEnsureRootCAResumesExistingStoredCA(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)
	repo := store.NewMemory()

	root, err := mgr.CreateRootCA("ca.example.com")
	require.NoError(t, err)
	_, err = repo.Add(root.Details)
	require.NoError(t, err)

	b := NewBootstrapper(mgr, repo)
	issued, err := b.EnsureRootCA("ca.example.com")
	require.NoError(t, err)

	assert.Equal(t, root.Details.KeyID, issued.Details.KeyID)
	assert.Equal(t, root.Cert.Raw, issued.Cert.Raw)
	require.NotNil(t, issued.Key)

	rows, err := repo.List(store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "resuming an existing CA must not create a second one")
}

func TestEnsureRootCACoalescesConcurrentCallers(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)
	repo := store.NewMemory()
	b := NewBootstrapper(mgr, repo)

	const n = 8
	results := make([]Issued, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.EnsureRootCA("concurrent.example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Details.KeyID, results[i].Details.KeyID)
	}

	rows, err := repo.List(store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "concurrent bootstrap for the same issuer domain must produce exactly one stored CA")
}

func TestEnsureRootCADistinctDomainsProduceDistinctCAs(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)
	repo := store.NewMemory()
	b := NewBootstrapper(mgr, repo)

	a, err := b.EnsureRootCA("a.example.com")
	require.NoError(t, err)
	c, err := b.EnsureRootCA("b.example.com")
	require.NoError(t, err)

	assert.NotEqual(t, a.Details.KeyID, c.Details.KeyID)
}
