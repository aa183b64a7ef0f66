package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "ckp.db"))
	require.NoError(t, err)
	defer db.Close()

	io := NewCheckpointIO(db, []byte("bootstrap"), 10)
	p, err := io.Load()
	require.NoError(t, err)
	require.Nil(t, p, "empty database has no checkpoint")

	saved := &Progress{
		Reference: "((a,b),c);",
		Mode:      "branch",
		Done:      []int{0, 1, 3},
		Counts:    []int{3, 1},
	}
	require.NoError(t, io.Save(saved))
	require.False(t, io.Old())

	p, err = io.Load()
	require.NoError(t, err)
	require.Equal(t, saved, p)

	other := NewCheckpointIO(db, []byte("other"), 10)
	p, err = other.Load()
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestNilDB(t *testing.T) {
	io := NewCheckpointIO(nil, []byte("bootstrap"), 0)
	require.NoError(t, io.Save(&Progress{Done: []int{1}}))
	p, err := io.Load()
	require.NoError(t, err)
	require.Nil(t, p)
}
