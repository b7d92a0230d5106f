package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_SingleInstance(t *testing.T) {
	f := NewFactory(Options{Backend: "memory"})

	var wg sync.WaitGroup
	got := make([]Provider, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.Get(context.Background())
			assert.NoError(t, err)
			got[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range got[1:] {
		assert.Same(t, got[0], p)
	}
	require.NoError(t, f.Close())
}

func TestFactory_SQLite(t *testing.T) {
	f := NewFactory(Options{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "f.db")})
	p, err := f.Get(context.Background())
	require.NoError(t, err)
	_, ok := p.(*SQLite)
	assert.True(t, ok)
	require.NoError(t, p.Ping(context.Background()))
	require.NoError(t, f.Close())
}

func TestFactory_UnknownBackendSticky(t *testing.T) {
	f := NewFactory(Options{Backend: "etcd"})
	_, err := f.Get(context.Background())
	require.Error(t, err)
	_, err2 := f.Get(context.Background())
	assert.Equal(t, err, err2)
}

func TestFactory_CloseBeforeGet(t *testing.T) {
	f := NewFactory(Options{Backend: "memory"})
	require.NoError(t, f.Close())
	p, err := f.Get(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, p)
}
