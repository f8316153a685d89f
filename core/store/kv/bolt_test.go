package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_UpdateAndView(t *testing.T) {
	db := makeDB(t)

	committed := false

	err := db.Update(func(tx WritableTx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		tx.OnCommit(func() { committed = true })

		return bucket.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)
	require.True(t, committed)

	err = db.View(func(tx ReadableTx) error {
		bucket := tx.GetBucket([]byte("bucket"))
		require.NotNil(t, bucket)
		require.Equal(t, []byte("pong"), bucket.Get([]byte("ping")))

		require.Nil(t, tx.GetBucket([]byte("unknown")))

		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(tx WritableTx) error {
		_, err := tx.GetBucketOrCreate(nil)
		return err
	})
	require.EqualError(t, err, "failed to create bucket: bucket name required")
}

func TestBoltDB_Update_Rollback(t *testing.T) {
	db := makeDB(t)

	committed := false

	err := db.Update(func(tx WritableTx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("ping"), []byte("pong")))

		tx.OnCommit(func() { committed = true })

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")
	require.False(t, committed)

	err = db.View(func(tx ReadableTx) error {
		require.Nil(t, tx.GetBucket([]byte("bucket")))
		return nil
	})
	require.NoError(t, err)
}

func TestBoltBucket_Get_Set_Delete(t *testing.T) {
	db := makeDB(t)

	err := db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))
		require.Equal(t, []byte("pong"), b.Get([]byte("ping")))
		require.Nil(t, b.Get([]byte("pong")))

		require.NoError(t, b.Delete([]byte("ping")))
		require.Nil(t, b.Get([]byte("ping")))

		return nil
	})
	require.NoError(t, err)
}

func TestBoltBucket_ForEach(t *testing.T) {
	db := makeDB(t)

	err := db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte{2}, []byte{2}))
		require.NoError(t, b.Set([]byte{1}, []byte{1}))
		require.NoError(t, b.Set([]byte{0}, []byte{0}))

		var i byte = 0
		return b.ForEach(func(k, v []byte) error {
			require.Equal(t, []byte{i}, k)
			require.Equal(t, []byte{i}, v)
			i++
			return nil
		})
	})
	require.NoError(t, err)
}

func TestBoltBucket_Scan(t *testing.T) {
	db := makeDB(t)

	err := db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte{7}, []byte{7}))
		require.NoError(t, b.Set([]byte{0}, []byte{0}))
		require.NoError(t, b.Set([]byte{1, 2}, []byte{1, 2}))

		var i byte = 0
		err = b.Scan(nil, func(k, v []byte) error {
			if len(k) == 1 {
				require.Equal(t, []byte{i}, k)
				require.Equal(t, []byte{i}, v)
				i += 7
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, byte(14), i)

		count := 0
		err = b.Scan([]byte{1}, func(k, v []byte) error {
			require.Equal(t, []byte{1, 2}, k)
			count++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, count)

		err = b.Scan([]byte{5}, func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.NoError(t, err)

		err = b.Scan([]byte{}, func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.EqualError(t, err, "callback failed: oops")

		return nil
	})
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) DB {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}
