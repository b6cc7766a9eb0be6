package pull

import "time"

// Report summarizes a completed pull, per spec §4.2's "Reporting".
type Report struct {
	MetadataFetched int
	ContentFetched  int
	TotalBytes      int64
	Elapsed         time.Duration
	// UpdatedRefs maps ref name to its new checksum; a ref whose
	// already-cached value matched the resolved target is omitted (the
	// "No changes" case).
	UpdatedRefs map[string]string
}
