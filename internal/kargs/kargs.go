// Package kargs implements KargsModel, the ordered multimap over kernel
// command-line arguments described in spec §4.4. Semantics are grounded in
// libostree's ostree-kernel-args.c (see _examples/original_source), with one
// deliberate departure: the C implementation collapses "bare key" and
// "key=" (empty value) into the same internal representation, so a reader
// cannot tell them apart once parsed. This model keeps them distinct end to
// end, per spec §3/§4.4.
package kargs

import (
	"fmt"
	"strings"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// entry is one (key, value) pair. hasValue is false for a bare key (no '=' at
// all); true with value == "" for an explicit empty value ("key=").
type entry struct {
	key      string
	value    string
	hasValue bool
}

// Model is an ordered multimap from key to list of values, preserving
// insertion order both across keys and among values of the same key.
type Model struct {
	entries []entry
}

// New returns an empty Model.
func New() *Model {
	return &Model{}
}

// Parse builds a Model from a whitespace-delimited kernel command line.
// Each token is split on the first '='; a token with no '=' becomes a bare
// key, and "key=" becomes an explicit empty value.
func Parse(options string) *Model {
	m := New()
	for _, tok := range strings.Fields(options) {
		m.appendToken(tok)
	}
	return m
}

func splitToken(tok string) (key, value string, hasValue bool) {
	if i := strings.IndexByte(tok, '='); i >= 0 {
		return tok[:i], tok[i+1:], true
	}
	return tok, "", false
}

func (m *Model) appendToken(tok string) {
	key, value, hasValue := splitToken(tok)
	m.entries = append(m.entries, entry{key: key, value: value, hasValue: hasValue})
}

// Append adds arg to the end of the model. Duplicates are legal.
func (m *Model) Append(arg string) {
	m.appendToken(arg)
}

// AppendIfMissing appends arg unless an identical (key, value, hasValue)
// entry already exists.
func (m *Model) AppendIfMissing(arg string) {
	key, value, hasValue := splitToken(arg)
	for _, e := range m.entries {
		if e.key == key && e.value == value && e.hasValue == hasValue {
			return
		}
	}
	m.entries = append(m.entries, entry{key: key, value: value, hasValue: hasValue})
}

// matchesEntry reports whether an entry equals the literal arg representation
// (bare key, "key=", or "key=value").
func matchesEntry(e entry, key string, value string, hasValue bool) bool {
	return e.key == key && e.hasValue == hasValue && (!hasValue || e.value == value)
}

// Replace implements spec §4.4's replace: a bare key or "key=value" must
// match exactly one existing entry for that key, which is replaced in
// place. "key=oldvalue=newvalue" replaces the specific old value.
func (m *Model) Replace(arg string) error {
	if key, oldValue, newValue, ok := splitReplaceTriple(arg); ok {
		idx := -1
		for i, e := range m.entries {
			if e.key == key && e.hasValue && e.value == oldValue {
				if idx != -1 {
					return fmt.Errorf("%w: replace %q: ambiguous old value", ostreeerr.ErrInvalidArgument, arg)
				}
				idx = i
			}
		}
		if idx == -1 {
			return fmt.Errorf("%w: replace %q: no matching entry", ostreeerr.ErrInvalidArgument, arg)
		}
		m.entries[idx].value = newValue
		m.entries[idx].hasValue = true
		return nil
	}

	key, value, hasValue := splitToken(arg)
	matches := m.indicesForKey(key)
	if len(matches) != 1 {
		return fmt.Errorf("%w: replace %q: expected exactly one existing value for key %q, found %d", ostreeerr.ErrInvalidArgument, arg, key, len(matches))
	}
	idx := matches[0]
	m.entries[idx].value = value
	m.entries[idx].hasValue = hasValue
	return nil
}

// splitReplaceTriple recognizes "key=oldvalue=newvalue" (exactly two '='s).
func splitReplaceTriple(arg string) (key, oldValue, newValue string, ok bool) {
	parts := strings.SplitN(arg, "=", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (m *Model) indicesForKey(key string) []int {
	var idxs []int
	for i, e := range m.entries {
		if e.key == key {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// Delete implements spec §4.4's delete. A bare key removes the first entry
// with no value for that key; "key=value" removes one occurrence of that
// specific pair; an ambiguous bare-key delete (multiple values, none
// specified) is an error.
func (m *Model) Delete(arg string) error {
	key, value, hasValue := splitToken(arg)

	if hasValue {
		for i, e := range m.entries {
			if matchesEntry(e, key, value, true) {
				m.entries = append(m.entries[:i], m.entries[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: delete %q: no matching entry", ostreeerr.ErrInvalidArgument, arg)
	}

	idxs := m.indicesForKey(key)
	switch len(idxs) {
	case 0:
		return fmt.Errorf("%w: delete %q: key not found", ostreeerr.ErrInvalidArgument, arg)
	case 1:
		i := idxs[0]
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		return nil
	default:
		// multiple entries for this key: only an unambiguous bare delete
		// (exactly one of them is itself bare-with-no-value) is allowed.
		bareIdx := -1
		for _, i := range idxs {
			if !m.entries[i].hasValue {
				if bareIdx != -1 {
					return fmt.Errorf("%w: delete %q: ambiguous, multiple values for key %q", ostreeerr.ErrInvalidArgument, arg, key)
				}
				bareIdx = i
			}
		}
		if bareIdx == -1 {
			return fmt.Errorf("%w: delete %q: ambiguous, multiple values for key %q", ostreeerr.ErrInvalidArgument, arg, key)
		}
		m.entries = append(m.entries[:bareIdx], m.entries[bareIdx+1:]...)
		return nil
	}
}

// Get returns the last value for key, mirroring
// ostree_kernel_args_get_last_value. ok is false if the key is absent.
func (m *Model) Get(key string) (value string, ok bool) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].key == key {
			return m.entries[i].value, true
		}
	}
	return "", false
}

// Has reports whether key appears at all, regardless of value.
func (m *Model) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// ReplaceOrAppend replaces arg's key if exactly one entry exists for it,
// otherwise appends it. A convenience built atop Replace/Append for the
// admin kargs edit-in-place flow (supplemented feature, see SPEC_FULL.md).
func (m *Model) ReplaceOrAppend(arg string) {
	key, _, _ := splitToken(arg)
	if len(m.indicesForKey(key)) == 1 {
		_ = m.Replace(arg)
		return
	}
	m.Append(arg)
}

// String serializes the model back to a single kernel command line, per
// spec §4.4's to_string: "key=value" for entries with a value (including
// explicit empty values), bare "key" otherwise, space-separated.
func (m *Model) String() string {
	parts := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		if e.hasValue {
			parts = append(parts, e.key+"="+e.value)
		} else {
			parts = append(parts, e.key)
		}
	}
	return strings.Join(parts, " ")
}

// Entries returns a snapshot of the model's (key, value, hasValue) tuples in
// insertion order, for tests and ordered-multimap equality checks.
type Entry struct {
	Key      string
	Value    string
	HasValue bool
}

func (m *Model) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = Entry{Key: e.key, Value: e.value, HasValue: e.hasValue}
	}
	return out
}

// Equal reports ordered-multimap equality between two models.
func (m *Model) Equal(other *Model) bool {
	if len(m.entries) != len(other.entries) {
		return false
	}
	for i := range m.entries {
		if m.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}
