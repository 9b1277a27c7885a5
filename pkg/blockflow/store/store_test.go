package store_test

import (
	"path/filepath"
	"testing"

	"github.com/randalmurphal/blockflow/pkg/blockflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) store.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		data := []byte{0x01, 0x00, 0xff, 0x7f}
		require.NoError(t, s.Save("run-1", "block-a", data))

		loaded, err := s.Load("run-1", "block-a")
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.Load("run-missing", "block-missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Save("run-1", "block-a", []byte("first")))
		require.NoError(t, s.Save("run-1", "block-a", []byte("second")))

		loaded, err := s.Load("run-1", "block-a")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), loaded)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		infos, err := s.List("run-missing")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run(name+"/List_Ordered", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Save("run-1", "block-c", []byte("a")))
		require.NoError(t, s.Save("run-1", "block-a", []byte("bb")))
		require.NoError(t, s.Save("run-1", "block-b", []byte("ccc")))

		infos, err := s.List("run-1")
		require.NoError(t, err)
		require.Len(t, infos, 3)

		assert.Equal(t, "block-c", infos[0].BlockID)
		assert.Equal(t, "block-a", infos[1].BlockID)
		assert.Equal(t, "block-b", infos[2].BlockID)
		assert.Less(t, infos[0].Sequence, infos[1].Sequence)
		assert.Less(t, infos[1].Sequence, infos[2].Sequence)

		assert.Equal(t, int64(1), infos[0].Size)
		assert.Equal(t, int64(3), infos[2].Size)
		assert.Equal(t, "run-1", infos[2].RunID)
		assert.False(t, infos[0].Timestamp.IsZero())
	})

	t.Run(name+"/Resave_MovesToEnd", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Save("run-1", "block-a", []byte("first")))
		require.NoError(t, s.Save("run-1", "block-b", []byte("second")))
		require.NoError(t, s.Save("run-1", "block-a", []byte("again")))

		infos, err := s.List("run-1")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "block-b", infos[0].BlockID)
		assert.Equal(t, "block-a", infos[1].BlockID)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Save("run-1", "block-a", []byte("data")))
		require.NoError(t, s.Delete("run-1", "block-a"))
		require.NoError(t, s.Delete("run-1", "block-a"))

		_, err := s.Load("run-1", "block-a")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/DeleteRun", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Save("run-1", "block-a", []byte("a")))
		require.NoError(t, s.Save("run-1", "block-b", []byte("b")))
		require.NoError(t, s.Save("run-2", "block-a", []byte("other")))

		require.NoError(t, s.DeleteRun("run-1"))
		require.NoError(t, s.DeleteRun("run-missing"))

		infos, err := s.List("run-1")
		require.NoError(t, err)
		assert.Empty(t, infos)

		data, err := s.Load("run-2", "block-a")
		require.NoError(t, err)
		assert.Equal(t, []byte("other"), data)
	})

	t.Run(name+"/DataCopy", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		original := []byte("original data")
		require.NoError(t, s.Save("run-1", "block-a", original))
		original[0] = 'X'

		loaded, err := s.Load("run-1", "block-a")
		require.NoError(t, err)
		assert.Equal(t, []byte("original data"), loaded)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		err := s.Save("run-1", "block-a", []byte("data"))
		assert.ErrorIs(t, err, store.ErrStoreClosed)

		_, err = s.Load("run-1", "block-a")
		assert.ErrorIs(t, err, store.ErrStoreClosed)

		_, err = s.List("run-1")
		assert.ErrorIs(t, err, store.ErrStoreClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) store.Store {
		s, err := store.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestPebbleStore(t *testing.T) {
	storeContractTest(t, "PebbleStore", func(t *testing.T) store.Store {
		s, err := store.NewPebbleStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")

	s1, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Save("run-1", "block-a", []byte("persistent")))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	data, err := s2.Load("run-1", "block-a")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestSQLiteStore_ReopenKeepsSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")

	s1, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Save("run-1", "block-a", make([]byte, 24)))
	require.NoError(t, s1.Save("run-2", "block-b", nil))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s2.Save("run-1", "block-c", []byte("c")))
	infos, err := s2.List("run-1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "block-a", infos[0].BlockID)
	assert.Equal(t, int64(24), infos[0].Size)
	assert.Equal(t, "block-c", infos[1].BlockID)
	assert.Greater(t, infos[1].Sequence, 2)

	data, err := s2.Load("run-2", "block-b")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPebbleStore_PersistenceKeepsSequence(t *testing.T) {
	dir := t.TempDir()

	s1, err := store.NewPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Save("run-1", "block-a", []byte("a")))
	require.NoError(t, s1.Save("run-1", "block-b", []byte("b")))
	require.NoError(t, s1.Close())

	s2, err := store.NewPebbleStore(dir)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s2.Save("run-1", "block-c", []byte("c")))
	infos, err := s2.List("run-1")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "block-c", infos[2].BlockID)
}

func TestMemoryStore_Len(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Save("run-1", "a", nil))
	require.NoError(t, s.Save("run-2", "a", nil))
	assert.Equal(t, 2, s.Len())
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{"default is memory", "", nil, nil},
		{"memory", store.KindMemory, nil, nil},
		{"sqlite in memory", store.KindSQLite, nil, nil},
		{"sqlite file", store.KindSQLite, func(t *testing.T) string { return filepath.Join(t.TempDir(), "s.db") }, nil},
		{"pebble", store.KindPebble, func(t *testing.T) string { return t.TempDir() }, nil},
		{"unknown", "redis", nil, store.ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.path != nil {
				path = tt.path(t)
			}
			s, err := store.Open(tt.kind, path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Save("run", "block", []byte("x")))
			data, err := s.Load("run", "block")
			require.NoError(t, err)
			assert.Equal(t, []byte("x"), data)
		})
	}
}

func TestOpen_PebbleRequiresPath(t *testing.T) {
	_, err := store.Open(store.KindPebble, "")
	assert.Error(t, err)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	snap := store.NewSnapshot("run-1", "block-a", 5, []byte{1, 2, 3, 4, 5, 0, 0, 0})
	data, err := snap.Marshal()
	require.NoError(t, err)

	got, err := store.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Size)
	assert.Equal(t, snap.Data, got.Data)
	assert.Equal(t, "block-a", got.BlockID)
}

func TestSnapshot_RejectsVersion(t *testing.T) {
	_, err := store.Unmarshal([]byte(`{"version":99}`))
	assert.Error(t, err)

	_, err = store.Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}
