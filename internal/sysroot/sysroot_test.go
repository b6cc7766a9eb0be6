package sysroot

import (
	"strings"
	"testing"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/stretchr/testify/require"
)

func csum(b byte) objects.Checksum {
	var c objects.Checksum
	c[0] = b
	return c
}

func TestComputeNewDeploymentListAssignsSerialAndBootserial(t *testing.T) {
	current := []Deployment{
		{OSName: "rhcos", Commit: csum(1), DeploySerial: 0, BootCsum: "aaa"},
	}
	booted := current[0]

	newList := ComputeNewDeploymentList(current, "rhcos", csum(2), "bbb", "origin:main", false, &booted)

	require.Len(t, newList, 2)
	require.Equal(t, csum(2), newList[0].Commit)
	require.Equal(t, 0, newList[0].DeploySerial)
	require.Equal(t, 0, newList[0].BootSerial)
	require.Equal(t, "bbb", newList[0].BootCsum)
	require.Equal(t, csum(1), newList[1].Commit, "booted deployment is retained")
}

func TestComputeNewDeploymentListPrunesNonRetained(t *testing.T) {
	current := []Deployment{
		{OSName: "rhcos", Commit: csum(1), DeploySerial: 0, BootCsum: "aaa"},
		{OSName: "rhcos", Commit: csum(2), DeploySerial: 0, BootCsum: "aaa"},
	}
	booted := current[1] // commit 2 is booted

	newList := ComputeNewDeploymentList(current, "rhcos", csum(3), "aaa", "", false, &booted)

	require.Len(t, newList, 2, "commit 1 is neither booted nor merge, and retain=false: pruned")
	require.Equal(t, csum(3), newList[0].Commit)
	require.Equal(t, csum(2), newList[1].Commit)
}

func TestComputeNewDeploymentListRetainsPinned(t *testing.T) {
	current := []Deployment{
		{OSName: "rhcos", Commit: csum(1), DeploySerial: 0, BootCsum: "aaa", Pinned: true},
	}
	newList := ComputeNewDeploymentList(current, "rhcos", csum(2), "aaa", "", false, nil)
	require.Len(t, newList, 2, "pinned deployment survives even though it's neither booted nor merge")
}

func TestComputeNewDeploymentListAssignsNewDeploySerialForSameCommit(t *testing.T) {
	current := []Deployment{
		{OSName: "rhcos", Commit: csum(1), DeploySerial: 0, BootCsum: "aaa"},
		{OSName: "rhcos", Commit: csum(1), DeploySerial: 1, BootCsum: "aaa"},
	}
	booted := current[0]
	newList := ComputeNewDeploymentList(current, "rhcos", csum(1), "aaa", "", true, &booted)
	require.Equal(t, 2, newList[0].DeploySerial)
}

func TestReindexBootserialsGroupsByBootcsum(t *testing.T) {
	list := []Deployment{
		{BootCsum: "a"},
		{BootCsum: "b"},
		{BootCsum: "a"},
	}
	reindexBootserials(list)
	require.Equal(t, 0, list[0].BootSerial)
	require.Equal(t, 0, list[1].BootSerial)
	require.Equal(t, 1, list[2].BootSerial)
}

func TestDeployListRoundTrip(t *testing.T) {
	s := &Sysroot{path: t.TempDir()}
	list := []Deployment{
		{OSName: "rhcos", Commit: csum(9), DeploySerial: 1, BootCsum: "deadbeef", BootSerial: 0,
			Pinned: true, Unlocked: UnlockedHotfix, SoftReboot: false, Origin: "origin:main", Options: "ro quiet"},
	}
	require.NoError(t, s.SaveDeploymentList(list))

	got, err := s.ListDeployments()
	require.NoError(t, err)
	require.Equal(t, list, got)
}

func TestFindBootedFromCmdline(t *testing.T) {
	list := []Deployment{
		{OSName: "rhcos", BootCsum: "abc123", BootSerial: 0},
	}
	cmdline := "root=/dev/sda1 ostree=/ostree/boot.1/rhcos/abc123/0 quiet"
	d, ok := findBootedFromCmdline(list, cmdline)
	require.True(t, ok)
	require.Equal(t, "rhcos", d.OSName)
}

func TestFindBootedFromCmdlineNoMatch(t *testing.T) {
	_, ok := findBootedFromCmdline(nil, "root=/dev/sda1 quiet")
	require.False(t, ok)
}

func TestComposeBaseKargsInheritsMergeOptionsAndStripsOstree(t *testing.T) {
	merge := &Deployment{Options: "ro quiet ostree=/ostree/boot.0/rhcos/old/0"}
	base, err := composeBaseKargs(KargsRequest{Append: []string{"debug"}}, merge)
	require.NoError(t, err)
	require.True(t, strings.Contains(base, "ro"))
	require.True(t, strings.Contains(base, "quiet"))
	require.True(t, strings.Contains(base, "debug"))
	require.False(t, strings.Contains(base, "ostree="))

	final := withOstreeArg(base, "rhcos", "newcsum", 1, 1)
	require.Equal(t, 1, strings.Count(final, "ostree="))
	require.True(t, strings.Contains(final, "ostree=/ostree/boot.1/rhcos/newcsum/1"))
}

func TestComposeBaseKargsReplaceOverride(t *testing.T) {
	merge := &Deployment{Options: "ro quiet"}
	base, err := composeBaseKargs(KargsRequest{Replace: []string{"ro=rw"}}, merge)
	require.NoError(t, err)
	require.True(t, strings.Contains(base, "rw"))
	require.False(t, strings.Contains(base, " ro "))
}

func TestWithOstreeArgReplacesExistingTag(t *testing.T) {
	final := withOstreeArg("ro ostree=/ostree/boot.0/rhcos/aaa/0 quiet", "rhcos", "aaa", 1, 1)
	require.Equal(t, 1, strings.Count(final, "ostree="))
	require.True(t, strings.Contains(final, "ostree=/ostree/boot.1/rhcos/aaa/1"))
}

func TestDeploymentBootlinkName(t *testing.T) {
	d := Deployment{OSName: "rhcos", BootCsum: "abc", BootSerial: 2}
	require.Equal(t, "rhcos/abc/2", d.bootlinkName())
}
