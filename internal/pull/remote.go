// Package pull implements the Pull Engine (spec §4.2): given a remote and a
// set of refs, it traverses the Merkle closure of commits reachable from
// those refs, fetches every object missing locally, verifies each by
// checksum, stages it into the repository, and atomically updates the
// corresponding remote-tracking refs.
package pull

// Remote names a pull source: an ordered mirrorlist sharing one logical
// repository.
type Remote struct {
	Name    string
	Mirrors []string
}
