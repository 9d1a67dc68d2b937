package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string            `json:"name"`
	Attrs map[string]string `json:"attrs"`
}

// testStoreContract runs the behaviour every backend must share.
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		var got doc
		err := s.Load(ctx, "missing-"+time.Now().Format("150405.000000")+".json", &got)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save then load", func(t *testing.T) {
		want := map[string]doc{"Acme Corp": {Name: "Acme Corp", Attrs: map[string]string{"Sector": "Energy"}}}
		require.NoError(t, s.Save(ctx, "issuers.json", want))

		var got map[string]doc
		require.NoError(t, s.Load(ctx, "issuers.json", &got))
		assert.Equal(t, want, got)
	})

	t.Run("save replaces whole document", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "securities.json", map[string]doc{"A": {Name: "a"}, "B": {Name: "b"}}))
		require.NoError(t, s.Save(ctx, "securities.json", map[string]doc{"C": {Name: "c"}}))

		var got map[string]doc
		require.NoError(t, s.Load(ctx, "securities.json", &got))
		assert.Equal(t, map[string]doc{"C": {Name: "c"}}, got)
	})

	t.Run("rejects path names", func(t *testing.T) {
		assert.Error(t, s.Save(ctx, "../escape.json", doc{}))
		assert.Error(t, s.Save(ctx, "", doc{}))
		assert.Error(t, s.Load(ctx, "sub/dir.json", &doc{}))
	})

	t.Run("lock is exclusive", func(t *testing.T) {
		unlock, err := s.Lock(ctx)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = s.Lock(waitCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()

		unlock2, err := s.Lock(ctx)
		require.NoError(t, err)
		unlock2()
	})

	t.Run("lock serialises read-modify-write", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "counter.json", 0))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := s.Lock(ctx)
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()

				var n int
				assert.NoError(t, s.Load(ctx, "counter.json", &n))
				assert.NoError(t, s.Save(ctx, "counter.json", n+1))
			}()
		}
		wg.Wait()

		var n int
		require.NoError(t, s.Load(ctx, "counter.json", &n))
		assert.Equal(t, 8, n)
	})
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStoreContract(t, s)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "issuers.json", map[string]string{"a": "b"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "issuers.json", entries[0].Name())
}

func TestFileStore_UnencodableKeepsOldDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "issuers.json", map[string]string{"a": "b"}))
	assert.Error(t, s.Save(ctx, "issuers.json", map[string]any{"bad": make(chan int)}))

	data, err := os.ReadFile(filepath.Join(dir, "issuers.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(data))
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "issuers.json"), []byte("{not json"), 0o644))
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	var got map[string]string
	err = s.Load(context.Background(), "issuers.json", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStore_CanceledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, "issuers.json", 1), context.Canceled)
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, closeFn, err := Open(context.Background(), OpenOptions{Backend: BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &FileStore{}, s)

	_, _, err = Open(context.Background(), OpenOptions{Backend: "mongo"})
	assert.Error(t, err)

	_, _, err = Open(context.Background(), OpenOptions{Backend: BackendPostgres})
	assert.Error(t, err)

	_, _, err = Open(context.Background(), OpenOptions{Backend: BackendPostgres, DatabaseURL: "postgres://localhost/test", MaxConns: 1})
	assert.ErrorContains(t, err, "at least 2 pooled connections")
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := ConnectPostgres(ctx, OpenOptions{DatabaseURL: url, MaxConns: 12})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	testStoreContract(t, s)
}
