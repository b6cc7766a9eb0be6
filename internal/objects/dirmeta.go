package objects

// DirMeta carries the permissions and ownership of one directory: mode,
// uid/gid, and xattrs. Directory content (the child entries) lives in the
// sibling DirTree object; splitting the two means two directories with
// identical children but different permissions share the DirTree object
// (spec §3).
type DirMeta struct {
	UID    uint32
	GID    uint32
	Mode   uint32
	XAttrs []XAttr
}

// Marshal returns DirMeta's canonical serialization.
func (m DirMeta) Marshal() []byte {
	w := &canonWriter{}
	w.byte(byte(KindDirMeta))
	w.uint32(m.UID)
	w.uint32(m.GID)
	w.uint32(m.Mode)
	writeXAttrs(w, m.XAttrs)
	return w.Bytes()
}

// Checksum returns the Checksum of m's canonical serialization.
func (m DirMeta) Checksum() Checksum {
	return Sum(m.Marshal())
}

// UnmarshalDirMeta decodes a canonical DirMeta serialization.
func UnmarshalDirMeta(b []byte) (DirMeta, error) {
	r := newCanonReader(b)
	if err := r.requireKind(byte(KindDirMeta)); err != nil {
		return DirMeta{}, err
	}
	var m DirMeta
	var err error
	if m.UID, err = r.uint32(); err != nil {
		return DirMeta{}, err
	}
	if m.GID, err = r.uint32(); err != nil {
		return DirMeta{}, err
	}
	if m.Mode, err = r.uint32(); err != nil {
		return DirMeta{}, err
	}
	if m.XAttrs, err = readXAttrs(r); err != nil {
		return DirMeta{}, err
	}
	if err := r.finish(); err != nil {
		return DirMeta{}, err
	}
	return m, nil
}

// Equal reports logical equality (used by tests and de-duplication checks).
func (m DirMeta) Equal(o DirMeta) bool {
	return m.UID == o.UID && m.GID == o.GID && m.Mode == o.Mode && equalXAttrs(m.XAttrs, o.XAttrs)
}
