package objects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChecksumRoundTrip(t *testing.T) {
	cs := Sum([]byte("hello"))
	parsed, err := ParseChecksum(cs.String())
	require.NoError(t, err)
	require.Equal(t, cs, parsed)
}

func TestParseChecksumRejectsBadInput(t *testing.T) {
	_, err := ParseChecksum("not-hex")
	require.Error(t, err)
	_, err = ParseChecksum("abcd")
	require.Error(t, err)
}

func TestLooksLikeChecksum(t *testing.T) {
	require.True(t, LooksLikeChecksum("abc123"))
	require.True(t, LooksLikeChecksum(""+"0123456789abcdef"))
	require.False(t, LooksLikeChecksum("xyz"))
	require.False(t, LooksLikeChecksum(""))
}

func TestFileRoundTrip(t *testing.T) {
	f := File{
		Mode:    0o100644,
		UID:     0,
		GID:     0,
		XAttrs:  []XAttr{{Name: "security.selinux", Value: []byte("system_u:object_r:etc_t:s0")}},
		Content: []byte("world\n"),
	}
	b := f.Marshal()
	got, err := UnmarshalFile(b)
	require.NoError(t, err)
	require.Equal(t, f.Content, got.Content)
	require.Equal(t, f.Mode, got.Mode)
	require.True(t, equalXAttrs(f.XAttrs, got.XAttrs))
	require.Equal(t, f.Checksum(), got.Checksum())
}

func TestFileChecksumDeterministic(t *testing.T) {
	f1 := File{Mode: 0o100644, Content: []byte("world\n")}
	f2 := File{Mode: 0o100644, Content: []byte("world\n")}
	require.Equal(t, f1.Checksum(), f2.Checksum())

	f3 := File{Mode: 0o100755, Content: []byte("world\n")}
	require.NotEqual(t, f1.Checksum(), f3.Checksum())
}

func TestSymlinkFile(t *testing.T) {
	f := File{Mode: 0o120777, Symlink: "../target"}
	require.True(t, f.IsSymlink())
	got, err := UnmarshalFile(f.Marshal())
	require.NoError(t, err)
	require.Equal(t, "../target", got.Symlink)
	require.Empty(t, got.Content)
}

func TestDirMetaRoundTrip(t *testing.T) {
	m := DirMeta{UID: 1000, GID: 1000, Mode: 0o40755}
	got, err := UnmarshalDirMeta(m.Marshal())
	require.NoError(t, err)
	require.True(t, m.Equal(got))
}

func TestDirTreeSortedAndRoundTrip(t *testing.T) {
	var tr DirTree
	fileA := File{Content: []byte("a")}
	fileB := File{Content: []byte("b")}
	tr.AddFile("zeta", fileA.Checksum())
	tr.AddFile("alpha", fileB.Checksum())
	require.Equal(t, "alpha", tr.Files[0].Name)
	require.Equal(t, "zeta", tr.Files[1].Name)

	got, err := UnmarshalDirTree(tr.Marshal())
	require.NoError(t, err)
	require.Equal(t, tr, got)
	require.Equal(t, tr.Checksum(), got.Checksum())
}

func TestDirTreeRejectsOutOfOrderOnDecode(t *testing.T) {
	w := &canonWriter{}
	w.byte(byte(KindDirTree))
	w.uint32(2)
	w.string("zeta")
	w.checksum(Checksum{})
	w.string("alpha")
	w.checksum(Checksum{})
	w.uint32(0)
	_, err := UnmarshalDirTree(w.Bytes())
	require.Error(t, err)
}

func TestCommitRoundTrip(t *testing.T) {
	parent := Sum([]byte("parent"))
	c := Commit{
		HasParent: true,
		Parent:    parent,
		RootTree:  Sum([]byte("tree")),
		RootMeta:  Sum([]byte("meta")),
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Subject:   "deploy v2",
		Body:      "",
		Metadata:  map[string]string{"ostree.version": "2"},
	}
	got, err := UnmarshalCommit(c.Marshal())
	require.NoError(t, err)
	require.Equal(t, c.Subject, got.Subject)
	require.Equal(t, c.RootTree, got.RootTree)
	require.True(t, c.Timestamp.Equal(got.Timestamp))
	require.Equal(t, c.Metadata, got.Metadata)
	require.Equal(t, c.Checksum(), got.Checksum())
}

func TestCommitWithoutParent(t *testing.T) {
	c := Commit{RootTree: Sum([]byte("t")), RootMeta: Sum([]byte("m")), Timestamp: time.Unix(0, 0).UTC()}
	got, err := UnmarshalCommit(c.Marshal())
	require.NoError(t, err)
	require.False(t, got.HasParent)
}

func TestObjectDecodeRoundTrip(t *testing.T) {
	f := File{Content: []byte("world\n")}
	raw := f.Marshal()
	obj, err := Decode(KindFile, raw)
	require.NoError(t, err)
	require.Equal(t, f.Checksum(), obj.Checksum)
	require.Equal(t, f.Content, obj.File.Content)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("etc"))
	require.Error(t, ValidateName(""))
	require.Error(t, ValidateName("."))
	require.Error(t, ValidateName(".."))
	require.Error(t, ValidateName("a/b"))
}
