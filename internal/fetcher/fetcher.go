package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/pkg/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultMaxPerHost is the default bound on concurrent in-flight requests
// per host (spec §4.1 "Algorithm").
const DefaultMaxPerHost = 8

// transientRetryBackoff bounds the retries of a single mirror before giving
// up on it and rotating to the next one: a connection reset or 5xx is worth
// a couple of quick retries, but it shouldn't delay rotation by much.
var transientRetryBackoff = wait.Backoff{
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Steps:    3,
}

// Fetcher issues HTTP(S) and file-scheme fetches across a mirrorlist,
// bounding per-host concurrency and tracking total bytes transferred.
type Fetcher struct {
	client     *http.Client
	maxPerHost int64
	log        *log.PrefixLogger

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted

	bytesTransferred atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxPerHost overrides DefaultMaxPerHost.
func WithMaxPerHost(n int64) Option {
	return func(f *Fetcher) { f.maxPerHost = n }
}

// WithHTTPClient overrides the default HTTP/2-capable client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     newHTTPClient(),
		maxPerHost: DefaultMaxPerHost,
		log:        log.NewPrefixLogger("fetcher"),
		sems:       make(map[string]*semaphore.Weighted),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// BytesTransferred returns the running total of bytes received so far.
func (f *Fetcher) BytesTransferred() int64 {
	return f.bytesTransferred.Load()
}

func (f *Fetcher) semaphoreFor(host string) *semaphore.Weighted {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sems[host]
	if !ok {
		s = semaphore.NewWeighted(f.maxPerHost)
		f.sems[host] = s
	}
	return s
}

// Fetch tries req.Mirrors in order, returning the first successful Outcome.
// A mirror that returns NotFound (403/404/410, or a missing file:// path)
// is terminal — it is not treated as a reason to rotate — and so is a fatal
// transport error (e.g. an unsupported URL scheme), which is returned as-is.
// Any other failure rotates to the next mirror; if every mirror fails, the
// last error is returned prefixed "All N mirrors failed".
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Outcome, error) {
	if len(req.Mirrors) == 0 {
		return Outcome{}, fmt.Errorf("%w: no mirrors supplied", ostreeerr.ErrInvalidArgument)
	}

	var lastErr error
	for _, mirror := range req.Mirrors {
		target, err := joinURL(mirror, req.Subpath)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ostreeerr.ErrInvalidArgument, err)
		}

		outcome, err := f.fetchOneWithRetry(ctx, target, req)
		if err == nil {
			return outcome, nil
		}
		if ostreeerr.Is(err, ostreeerr.ErrNotFound) {
			logNotFound(target, req.OptionalContent)
			return Outcome{}, err
		}
		if ostreeerr.Is(err, ostreeerr.ErrTransportFatal) {
			return Outcome{}, err
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		f.log.Debugf("mirror %s failed, rotating: %v", target, err)
		lastErr = err
	}

	err := fmt.Errorf("All %d mirrors failed: %w", len(req.Mirrors), lastErr)
	logMirrorExhausted(req.Subpath, err)
	return Outcome{}, err
}

// fetchOneWithRetry retries target through transientRetryBackoff while
// fetchOne keeps failing with ErrTransportTransient, and gives up
// immediately on any other error (including ErrNotFound, which the caller
// treats as terminal rather than mirror-rotation material).
func (f *Fetcher) fetchOneWithRetry(ctx context.Context, target string, req Request) (Outcome, error) {
	var outcome Outcome
	var lastErr error
	backoffErr := wait.ExponentialBackoff(transientRetryBackoff, func() (bool, error) {
		var err error
		outcome, err = f.fetchOne(ctx, target, req)
		if err == nil {
			return true, nil
		}
		lastErr = err
		if ctx.Err() != nil || !ostreeerr.Is(err, ostreeerr.ErrTransportTransient) {
			return false, err
		}
		f.log.Debugf("transient error fetching %s, retrying: %v", target, err)
		return false, nil
	})
	if backoffErr != nil {
		if errors.Is(backoffErr, wait.ErrWaitTimeout) {
			return Outcome{}, lastErr
		}
		return Outcome{}, backoffErr
	}
	return outcome, nil
}

func joinURL(mirror, subpath string) (string, error) {
	if subpath == "" {
		return mirror, nil
	}
	base, err := url.Parse(mirror)
	if err != nil {
		return "", fmt.Errorf("parse mirror %q: %w", mirror, err)
	}
	base.Path = path.Join(base.Path, subpath)
	return base.String(), nil
}

func (f *Fetcher) fetchOne(ctx context.Context, target string, req Request) (Outcome, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: parse url %q: %w", ostreeerr.ErrInvalidArgument, target, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, u, req)
	case "file":
		return f.fetchFile(ctx, u, req)
	case "":
		return f.fetchFile(ctx, &url.URL{Path: target}, req)
	default:
		return Outcome{}, fmt.Errorf("%w: unsupported scheme %q", ostreeerr.ErrTransportFatal, u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL, req Request) (Outcome, error) {
	sem := f.semaphoreFor(u.Host)
	if err := sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, fmt.Errorf("%w: acquire host slot: %w", ostreeerr.ErrTransportTransient, err)
	}
	defer sem.Release(1)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: build request: %w", ostreeerr.ErrTransportFatal, err)
	}
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fmt.Errorf("%w: %w", ostreeerr.ErrTransportTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Outcome{Kind: OutcomeNotModified}, nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Outcome{}, fmt.Errorf("%w: %s: HTTP %d", ostreeerr.ErrNotFound, u, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Outcome{}, fmt.Errorf("%w: %s: HTTP %d", ostreeerr.ErrTransportTransient, u, resp.StatusCode)
	}

	if req.MaxSize > 0 {
		if cl := resp.ContentLength; cl > 0 && cl > req.MaxSize {
			return Outcome{}, fmt.Errorf("%w: content-length %d exceeds max_size %d", ostreeerr.ErrSizeExceeded, cl, req.MaxSize)
		}
	}

	body := io.Reader(resp.Body)
	if req.MaxSize > 0 {
		body = io.LimitReader(resp.Body, req.MaxSize+1)
	}
	countingBody := &countingReader{r: body, counter: &f.bytesTransferred}

	var outcome Outcome
	if req.AsTmpFile {
		outcome, err = f.drainToTmpFile(countingBody, req)
	} else {
		outcome, err = f.drainToBytes(countingBody, req)
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome.ETag = resp.Header.Get("ETag")
	outcome.LastModified = resp.Header.Get("Last-Modified")
	return outcome, nil
}

func (f *Fetcher) drainToBytes(r io.Reader, req Request) (Outcome, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: read body: %w", ostreeerr.ErrIO, err)
	}
	if req.MaxSize > 0 && int64(len(buf)) > req.MaxSize {
		return Outcome{}, fmt.Errorf("%w: body exceeded max_size %d", ostreeerr.ErrSizeExceeded, req.MaxSize)
	}
	if req.NulTerminated {
		buf = append(buf, 0)
	}
	return Outcome{Kind: OutcomeBytes, Buf: buf}, nil
}

func (f *Fetcher) drainToTmpFile(r io.Reader, req Request) (Outcome, error) {
	tmp, err := os.CreateTemp("", "ostree-fetch-*")
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create tmp file: %w", ostreeerr.ErrIO, err)
	}
	path := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Outcome{}, fmt.Errorf("%w: write tmp file: %w", ostreeerr.ErrIO, err)
	}
	if req.MaxSize > 0 && n > req.MaxSize {
		_ = os.Remove(path)
		return Outcome{}, fmt.Errorf("%w: body exceeded max_size %d", ostreeerr.ErrSizeExceeded, req.MaxSize)
	}
	return Outcome{Kind: OutcomeTmpFile, Path: path}, nil
}

func (f *Fetcher) fetchFile(ctx context.Context, u *url.URL, req Request) (Outcome, error) {
	info, err := os.Stat(u.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Outcome{}, fmt.Errorf("%w: %s", ostreeerr.ErrNotFound, u.Path)
		}
		return Outcome{}, fmt.Errorf("%w: stat %s: %w", ostreeerr.ErrIO, u.Path, err)
	}
	if req.MaxSize > 0 && info.Size() > req.MaxSize {
		return Outcome{}, fmt.Errorf("%w: file size %d exceeds max_size %d", ostreeerr.ErrSizeExceeded, info.Size(), req.MaxSize)
	}

	file, err := os.Open(u.Path)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: open %s: %w", ostreeerr.ErrIO, u.Path, err)
	}
	defer file.Close()

	countingBody := &countingReader{r: file, counter: &f.bytesTransferred}
	if req.AsTmpFile {
		return f.drainToTmpFile(countingBody, req)
	}
	return f.drainToBytes(countingBody, req)
}

// countingReader tallies bytes read into a shared atomic counter, giving
// the Fetcher a live "total bytes transferred" figure (spec §4.1) without
// needing every call site to do its own bookkeeping.
type countingReader struct {
	r       io.Reader
	counter *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.counter.Add(int64(n))
	}
	return n, err
}

// HTTPDateLayout is the format used for If-Modified-Since headers, per
// RFC 7231.
const HTTPDateLayout = http.TimeFormat

// FormatContentLength is a small helper for logging transfer sizes in a
// human-friendly unit elsewhere in the engine (cmd/ostree's pull summary
// line); kept here since it's fetcher-shaped data.
func FormatContentLength(n int64) string {
	return humanize.Bytes(uint64(n))
}
