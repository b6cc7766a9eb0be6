package objects

// XAttr is one extended attribute, carried verbatim on DirMeta and File
// objects so permissions (e.g. SELinux labels, capabilities) round-trip
// through the content store (spec §3).
type XAttr struct {
	Name  string
	Value []byte
}

func writeXAttrs(w *canonWriter, xattrs []XAttr) {
	w.uint32(uint32(len(xattrs)))
	for _, x := range xattrs {
		w.string(x.Name)
		w.bytes(x.Value)
	}
}

func readXAttrs(r *canonReader) ([]XAttr, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]XAttr, n)
	for i := range out {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		value, err := r.bytes()
		if err != nil {
			return nil, err
		}
		out[i] = XAttr{Name: name, Value: append([]byte(nil), value...)}
	}
	return out, nil
}

func equalXAttrs(a, b []XAttr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
		if string(a[i].Value) != string(b[i].Value) {
			return false
		}
	}
	return true
}
