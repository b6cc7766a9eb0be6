package objects

import (
	"fmt"
	"sort"
	"time"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// Commit is a named root-tree snapshot with lineage (spec §3). It is the
// only object kind a Ref may point to.
type Commit struct {
	Parent       Checksum // Zero means no parent
	HasParent    bool
	RootTree     Checksum
	RootMeta     Checksum
	Timestamp    time.Time
	Subject      string
	Body         string
	RelatedRefs  map[string]Checksum // ref name -> commit checksum, informational
	Metadata     map[string]string
}

// Marshal returns Commit's canonical serialization. Map fields are emitted
// in sorted-key order: the data model imposes no ordering on them, and
// sorting is the simplest way to make two logically equal commits produce
// byte-identical output.
func (c Commit) Marshal() []byte {
	w := &canonWriter{}
	w.byte(byte(KindCommit))
	if c.HasParent {
		w.byte(1)
		w.checksum(c.Parent)
	} else {
		w.byte(0)
	}
	w.checksum(c.RootTree)
	w.checksum(c.RootMeta)
	w.uint64(uint64(c.Timestamp.Unix()))
	w.string(c.Subject)
	w.string(c.Body)

	refNames := sortedKeys(c.RelatedRefs)
	w.uint32(uint32(len(refNames)))
	for _, name := range refNames {
		w.string(name)
		w.checksum(c.RelatedRefs[name])
	}

	metaKeys := sortedKeysStr(c.Metadata)
	w.uint32(uint32(len(metaKeys)))
	for _, k := range metaKeys {
		w.string(k)
		w.string(c.Metadata[k])
	}

	return w.Bytes()
}

// Checksum returns the Checksum of c's canonical serialization.
func (c Commit) Checksum() Checksum {
	return Sum(c.Marshal())
}

// UnmarshalCommit decodes a canonical Commit serialization.
func UnmarshalCommit(b []byte) (Commit, error) {
	r := newCanonReader(b)
	if err := r.requireKind(byte(KindCommit)); err != nil {
		return Commit{}, err
	}
	var c Commit
	hasParent, err := r.byte()
	if err != nil {
		return Commit{}, err
	}
	if hasParent == 1 {
		c.HasParent = true
		if c.Parent, err = r.checksum(); err != nil {
			return Commit{}, err
		}
	} else if hasParent != 0 {
		return Commit{}, fmt.Errorf("%w: invalid has-parent flag", ostreeerr.ErrCorrupt)
	}
	if c.RootTree, err = r.checksum(); err != nil {
		return Commit{}, err
	}
	if c.RootMeta, err = r.checksum(); err != nil {
		return Commit{}, err
	}
	unixTS, err := r.uint64()
	if err != nil {
		return Commit{}, err
	}
	c.Timestamp = time.Unix(int64(unixTS), 0).UTC()
	if c.Subject, err = r.string(); err != nil {
		return Commit{}, err
	}
	if c.Body, err = r.string(); err != nil {
		return Commit{}, err
	}

	nRefs, err := r.uint32()
	if err != nil {
		return Commit{}, err
	}
	if nRefs > 0 {
		c.RelatedRefs = make(map[string]Checksum, nRefs)
		for i := uint32(0); i < nRefs; i++ {
			name, err := r.string()
			if err != nil {
				return Commit{}, err
			}
			cs, err := r.checksum()
			if err != nil {
				return Commit{}, err
			}
			c.RelatedRefs[name] = cs
		}
	}

	nMeta, err := r.uint32()
	if err != nil {
		return Commit{}, err
	}
	if nMeta > 0 {
		c.Metadata = make(map[string]string, nMeta)
		for i := uint32(0); i < nMeta; i++ {
			k, err := r.string()
			if err != nil {
				return Commit{}, err
			}
			v, err := r.string()
			if err != nil {
				return Commit{}, err
			}
			c.Metadata[k] = v
		}
	}

	if err := r.finish(); err != nil {
		return Commit{}, err
	}
	return c, nil
}

func sortedKeys(m map[string]Checksum) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysStr(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
