package repo

import (
	"fmt"
	"strings"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// ResolveRev resolves a refspec to a commit checksum. Accepted forms:
//   - a 64-character hex string, used directly as a checksum
//   - "remote:ref", resolved against refs/remotes/<remote>/<ref>
//   - a bare "ref", resolved against refs/heads/<ref>, falling back to any
//     refs/remotes/*/<ref> with that name if no local ref matches
//   - any of the above with a trailing "^", meaning "parent commit of"
//   - a hex prefix (1..64 chars) shorter than a full checksum, matched
//     against on-disk commit objects if exactly one matches
//
// allowNoent controls whether a refspec that resolves to nothing returns
// (zero, false, nil) instead of an error wrapping ErrNotFound.
func (r *Repository) ResolveRev(refspec string, allowNoent bool) (objects.Checksum, bool, error) {
	spec := refspec
	parentHops := 0
	for strings.HasSuffix(spec, "^") {
		spec = strings.TrimSuffix(spec, "^")
		parentHops++
	}

	csum, found, err := r.resolveBase(spec)
	if err != nil {
		return objects.Checksum{}, false, err
	}
	if !found {
		if allowNoent {
			return objects.Checksum{}, false, nil
		}
		return objects.Checksum{}, false, fmt.Errorf("%w: refspec %q", ostreeerr.ErrNotFound, refspec)
	}

	for i := 0; i < parentHops; i++ {
		obj, err := r.LoadObject(objects.KindCommit, csum)
		if err != nil {
			return objects.Checksum{}, false, err
		}
		if !obj.Commit.HasParent {
			if allowNoent {
				return objects.Checksum{}, false, nil
			}
			return objects.Checksum{}, false, fmt.Errorf("%w: refspec %q: commit %s has no parent", ostreeerr.ErrNotFound, refspec, csum)
		}
		csum = obj.Commit.Parent
	}
	return csum, true, nil
}

func (r *Repository) resolveBase(spec string) (objects.Checksum, bool, error) {
	if len(spec) == 64 && objects.LooksLikeChecksum(spec) {
		csum, err := objects.ParseChecksum(spec)
		if err != nil {
			return objects.Checksum{}, false, err
		}
		return csum, true, nil
	}

	if remote, ref, ok := strings.Cut(spec, ":"); ok {
		refs, err := r.ListRefs(remote + ":")
		if err != nil {
			return objects.Checksum{}, false, err
		}
		if csum, ok := refs[remote+":"+ref]; ok {
			return csum, true, nil
		}
		return objects.Checksum{}, false, nil
	}

	localRefs, err := r.ListRefs("")
	if err != nil {
		return objects.Checksum{}, false, err
	}
	if csum, ok := localRefs[spec]; ok {
		return csum, true, nil
	}
	// fall back to any remote ref with this name
	for key, csum := range localRefs {
		_, name, hasRemote := strings.Cut(key, ":")
		if hasRemote && name == spec {
			return csum, true, nil
		}
	}

	if objects.LooksLikeChecksum(spec) && len(spec) < 64 {
		return r.resolvePartialPrefix(spec)
	}

	return objects.Checksum{}, false, nil
}

// resolvePartialPrefix scans local commit objects for a unique checksum
// beginning with prefix.
func (r *Repository) resolvePartialPrefix(prefix string) (objects.Checksum, bool, error) {
	candidates, err := r.listCommitChecksums()
	if err != nil {
		return objects.Checksum{}, false, err
	}
	var match objects.Checksum
	count := 0
	for _, c := range candidates {
		if strings.HasPrefix(c.String(), prefix) {
			match = c
			count++
		}
	}
	switch count {
	case 0:
		return objects.Checksum{}, false, nil
	case 1:
		return match, true, nil
	default:
		return objects.Checksum{}, false, fmt.Errorf("%w: prefix %q is ambiguous", ostreeerr.ErrInvalidArgument, prefix)
	}
}
