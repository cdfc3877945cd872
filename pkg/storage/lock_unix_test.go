//go:build unix

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock(t *testing.T) {
	t.Run("lock_unlock", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.lock")
		lock := NewFileLock(path)

		require.NoError(t, lock.Lock())
		assert.FileExists(t, path)
		require.NoError(t, lock.Unlock())

		// Reusable after release.
		require.NoError(t, lock.Lock())
		require.NoError(t, lock.Unlock())
	})

	t.Run("double_lock_rejected", func(t *testing.T) {
		lock := NewFileLock(filepath.Join(t.TempDir(), "a.lock"))
		require.NoError(t, lock.Lock())
		defer lock.Unlock()

		assert.Error(t, lock.Lock())
	})

	t.Run("unlock_unheld_is_noop", func(t *testing.T) {
		lock := NewFileLock(filepath.Join(t.TempDir(), "a.lock"))
		assert.NoError(t, lock.Unlock())
	})

	t.Run("second_holder_blocks", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.lock")
		first := NewFileLock(path)
		second := NewFileLock(path)

		require.NoError(t, first.Lock())

		acquired := make(chan error, 1)
		go func() {
			acquired <- second.Lock()
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while first was held")
		case <-time.After(100 * time.Millisecond):
		}

		require.NoError(t, first.Unlock())

		select {
		case err := <-acquired:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("second lock not acquired after release")
		}
		require.NoError(t, second.Unlock())
	})
}

func TestTouch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	require.NoError(t, Touch(path))
	assert.FileExists(t, path)
	// Idempotent.
	require.NoError(t, Touch(path))
}
