package objects

// File is a regular file or symlink's content object: its metadata plus
// either file content or a symlink target (never both). Mode's upper bits
// distinguish symlinks the same way syscall.Stat_t.Mode does, but Symlink
// being non-empty is what this package actually branches on.
type File struct {
	Mode    uint32
	UID     uint32
	GID     uint32
	XAttrs  []XAttr
	Symlink string // non-empty for a symlink; Content must be empty
	Content []byte // regular file content; empty for a symlink
}

// IsSymlink reports whether this File object represents a symlink.
func (f File) IsSymlink() bool {
	return f.Symlink != ""
}

// Marshal returns File's canonical serialization: the whole object (mode,
// ownership, xattrs, and payload) is hashed as a unit, so staging identical
// content under different ownership produces distinct objects.
func (f File) Marshal() []byte {
	w := &canonWriter{}
	w.byte(byte(KindFile))
	w.uint32(f.Mode)
	w.uint32(f.UID)
	w.uint32(f.GID)
	writeXAttrs(w, f.XAttrs)
	w.string(f.Symlink)
	w.bytes(f.Content)
	return w.Bytes()
}

// Checksum returns the Checksum of f's canonical serialization.
func (f File) Checksum() Checksum {
	return Sum(f.Marshal())
}

// UnmarshalFile decodes a canonical File serialization.
func UnmarshalFile(b []byte) (File, error) {
	r := newCanonReader(b)
	if err := r.requireKind(byte(KindFile)); err != nil {
		return File{}, err
	}
	var f File
	var err error
	if f.Mode, err = r.uint32(); err != nil {
		return File{}, err
	}
	if f.UID, err = r.uint32(); err != nil {
		return File{}, err
	}
	if f.GID, err = r.uint32(); err != nil {
		return File{}, err
	}
	if f.XAttrs, err = readXAttrs(r); err != nil {
		return File{}, err
	}
	if f.Symlink, err = r.string(); err != nil {
		return File{}, err
	}
	content, err := r.bytes()
	if err != nil {
		return File{}, err
	}
	f.Content = append([]byte(nil), content...)
	if err := r.finish(); err != nil {
		return File{}, err
	}
	return f, nil
}
