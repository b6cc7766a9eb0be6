package repo

import "fmt"

// Mode is the repository's storage mode (spec §3's Repository.mode).
type Mode int

const (
	// ModeBare stores file objects as plain files on disk, uid/gid/mode set
	// directly — requires root or CAP_CHOWN to check out faithfully.
	ModeBare Mode = iota
	// ModeBareUser stores file objects as plain files but owned by the
	// current user, with xattrs recording the "real" uid/gid/mode for a
	// later checkout as root.
	ModeBareUser
	// ModeArchive stores file content gzip-compressed; this is the only
	// mode a pull source (remote) may be for this engine (spec §4.2 step 1).
	ModeArchive
)

func (m Mode) String() string {
	switch m {
	case ModeBare:
		return "bare"
	case ModeBareUser:
		return "bare-user"
	case ModeArchive:
		return "archive"
	default:
		return "unknown"
	}
}

func parseMode(s string) (Mode, error) {
	switch s {
	case "bare":
		return ModeBare, nil
	case "bare-user":
		return ModeBareUser, nil
	case "archive", "archive-z2":
		return ModeArchive, nil
	default:
		return 0, fmt.Errorf("repo: unknown mode %q", s)
	}
}
