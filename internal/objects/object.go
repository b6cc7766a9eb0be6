package objects

import "fmt"

// Object is a decoded object paired with the Kind and Checksum it was
// loaded or staged under. Repository callers work with Object rather than
// the raw bytes once past the staging boundary (internal/repo).
type Object struct {
	Kind     Kind
	Checksum Checksum
	Commit   *Commit
	DirTree  *DirTree
	DirMeta  *DirMeta
	File     *File
}

// Marshal returns the canonical byte serialization of whichever variant is
// populated.
func (o Object) Marshal() ([]byte, error) {
	switch o.Kind {
	case KindCommit:
		if o.Commit == nil {
			return nil, fmt.Errorf("object: kind commit with nil payload")
		}
		return o.Commit.Marshal(), nil
	case KindDirTree:
		if o.DirTree == nil {
			return nil, fmt.Errorf("object: kind dirtree with nil payload")
		}
		return o.DirTree.Marshal(), nil
	case KindDirMeta:
		if o.DirMeta == nil {
			return nil, fmt.Errorf("object: kind dirmeta with nil payload")
		}
		return o.DirMeta.Marshal(), nil
	case KindFile:
		if o.File == nil {
			return nil, fmt.Errorf("object: kind file with nil payload")
		}
		return o.File.Marshal(), nil
	default:
		return nil, fmt.Errorf("object: unknown kind %v", o.Kind)
	}
}

// Decode parses raw bytes of the given kind into an Object.
func Decode(kind Kind, b []byte) (Object, error) {
	switch kind {
	case KindCommit:
		c, err := UnmarshalCommit(b)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: kind, Checksum: Sum(b), Commit: &c}, nil
	case KindDirTree:
		t, err := UnmarshalDirTree(b)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: kind, Checksum: Sum(b), DirTree: &t}, nil
	case KindDirMeta:
		m, err := UnmarshalDirMeta(b)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: kind, Checksum: Sum(b), DirMeta: &m}, nil
	case KindFile:
		f, err := UnmarshalFile(b)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: kind, Checksum: Sum(b), File: &f}, nil
	default:
		return Object{}, fmt.Errorf("object: unknown kind %v", kind)
	}
}
