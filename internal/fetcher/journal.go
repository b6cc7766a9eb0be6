package fetcher

import (
	"github.com/coreos/go-systemd/v22/journal"
)

// logNotFound records a non-optional NotFound outcome to the systemd
// journal, so an admin correlating a stalled pull with `journalctl` sees the
// specific mirror/subpath that 404'd rather than just the pull's own exit
// status.
func logNotFound(url string, optional bool) {
	if optional {
		return
	}
	if !journal.Enabled() {
		return
	}
	_ = journal.Send("fetch: not found: "+url, journal.PriInfo, map[string]string{
		"OSTREE_ENGINE_SUBSYSTEM": "fetcher",
		"URL":                     url,
	})
}

// logMirrorExhausted records that every mirror in a mirrorlist failed.
func logMirrorExhausted(url string, err error) {
	if !journal.Enabled() {
		return
	}
	_ = journal.Send("fetch: all mirrors failed: "+err.Error(), journal.PriWarning, map[string]string{
		"OSTREE_ENGINE_SUBSYSTEM": "fetcher",
		"URL":                     url,
	})
}
