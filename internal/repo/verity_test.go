package repo

import (
	"testing"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/stretchr/testify/require"
)

func TestStageContentVerityOpportunisticNeverFails(t *testing.T) {
	r, err := Init(t.TempDir(), ModeBare, VerityOpportunistic)
	require.NoError(t, err)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)

	f := objects.File{Mode: 0o100644, Content: []byte("hello")}
	_, err = txn.StageContent(f.Checksum(), f.Marshal())
	require.NoError(t, err)

	snap := r.Verity()
	require.Equal(t, int64(1), snap.Enabled+snap.Downgraded,
		"exactly one of enabled/downgraded should be recorded for one staged object")
}

// TestStageContentVerityRequiredFailsWhenUnsupported exercises the spec §4.3
// "required and unsupported" failure path. t.TempDir() is backed by a
// filesystem without fsverity support in every environment this runs in, so
// FS_IOC_ENABLE_VERITY is expected to fail.
func TestStageContentVerityRequiredFailsWhenUnsupported(t *testing.T) {
	r, err := Init(t.TempDir(), ModeBare, VerityRequired)
	require.NoError(t, err)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)

	f := objects.File{Mode: 0o100644, Content: []byte("hello")}
	_, err = txn.StageContent(f.Checksum(), f.Marshal())
	require.Error(t, err)
	require.True(t, ostreeerr.Is(err, ostreeerr.ErrUnsupported))

	snap := r.Verity()
	require.Zero(t, snap.Enabled)
}

func TestStageContentVerityOffSkipsEntirely(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)

	f := objects.File{Mode: 0o100644, Content: []byte("hello")}
	_, err = txn.StageContent(f.Checksum(), f.Marshal())
	require.NoError(t, err)

	snap := r.Verity()
	require.Zero(t, snap.Enabled)
	require.Zero(t, snap.Skipped)
	require.Zero(t, snap.Downgraded)
}
