package objects

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// FileEntry names one regular file or symlink inside a DirTree, by its File
// object's Checksum.
type FileEntry struct {
	Name     string
	Checksum Checksum
}

// SubdirEntry names one child directory inside a DirTree, by both its
// DirTree (content) and DirMeta (permissions) checksums.
type SubdirEntry struct {
	Name         string
	TreeChecksum Checksum
	MetaChecksum Checksum
}

// DirTree is the content of one directory: its files and subdirectories,
// each referenced by checksum. Entries are kept sorted by name so that two
// directories with the same children always produce the same canonical
// serialization and the same checksum, regardless of the order callers
// happened to add entries in.
type DirTree struct {
	Files   []FileEntry
	Subdirs []SubdirEntry
}

// AddFile inserts or replaces a file entry, keeping Files sorted by name.
func (t *DirTree) AddFile(name string, checksum Checksum) {
	for i, f := range t.Files {
		if f.Name == name {
			t.Files[i].Checksum = checksum
			return
		}
	}
	t.Files = append(t.Files, FileEntry{Name: name, Checksum: checksum})
	sort.Slice(t.Files, func(i, j int) bool { return t.Files[i].Name < t.Files[j].Name })
}

// AddSubdir inserts or replaces a subdirectory entry, keeping Subdirs sorted
// by name.
func (t *DirTree) AddSubdir(name string, tree, meta Checksum) {
	for i, d := range t.Subdirs {
		if d.Name == name {
			t.Subdirs[i].TreeChecksum = tree
			t.Subdirs[i].MetaChecksum = meta
			return
		}
	}
	t.Subdirs = append(t.Subdirs, SubdirEntry{Name: name, TreeChecksum: tree, MetaChecksum: meta})
	sort.Slice(t.Subdirs, func(i, j int) bool { return t.Subdirs[i].Name < t.Subdirs[j].Name })
}

// Marshal returns DirTree's canonical serialization.
func (t DirTree) Marshal() []byte {
	w := &canonWriter{}
	w.byte(byte(KindDirTree))
	w.uint32(uint32(len(t.Files)))
	for _, f := range t.Files {
		w.string(f.Name)
		w.checksum(f.Checksum)
	}
	w.uint32(uint32(len(t.Subdirs)))
	for _, d := range t.Subdirs {
		w.string(d.Name)
		w.checksum(d.TreeChecksum)
		w.checksum(d.MetaChecksum)
	}
	return w.Bytes()
}

// Checksum returns the Checksum of t's canonical serialization.
func (t DirTree) Checksum() Checksum {
	return Sum(t.Marshal())
}

// UnmarshalDirTree decodes a canonical DirTree serialization. Entries must
// be in strictly increasing name order; a tree assembled out of order (or
// tampered with) fails as corrupt rather than silently re-sorting.
func UnmarshalDirTree(b []byte) (DirTree, error) {
	r := newCanonReader(b)
	if err := r.requireKind(byte(KindDirTree)); err != nil {
		return DirTree{}, err
	}
	nFiles, err := r.uint32()
	if err != nil {
		return DirTree{}, err
	}
	var t DirTree
	last := ""
	for i := uint32(0); i < nFiles; i++ {
		name, err := r.string()
		if err != nil {
			return DirTree{}, err
		}
		if i > 0 && name <= last {
			return DirTree{}, fmt.Errorf("%w: dirtree file entries out of order at %q", ostreeerr.ErrCorrupt, name)
		}
		last = name
		cs, err := r.checksum()
		if err != nil {
			return DirTree{}, err
		}
		t.Files = append(t.Files, FileEntry{Name: name, Checksum: cs})
	}

	nSub, err := r.uint32()
	if err != nil {
		return DirTree{}, err
	}
	last = ""
	for i := uint32(0); i < nSub; i++ {
		name, err := r.string()
		if err != nil {
			return DirTree{}, err
		}
		if i > 0 && name <= last {
			return DirTree{}, fmt.Errorf("%w: dirtree subdir entries out of order at %q", ostreeerr.ErrCorrupt, name)
		}
		last = name
		tree, err := r.checksum()
		if err != nil {
			return DirTree{}, err
		}
		meta, err := r.checksum()
		if err != nil {
			return DirTree{}, err
		}
		t.Subdirs = append(t.Subdirs, SubdirEntry{Name: name, TreeChecksum: tree, MetaChecksum: meta})
	}
	if err := r.finish(); err != nil {
		return DirTree{}, err
	}
	return t, nil
}

// ValidateName rejects path separators and the "." / ".." entries that
// would let a malicious tree escape its checkout directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: invalid directory entry name %q", ostreeerr.ErrInvalidArgument, name)
	}
	return nil
}
