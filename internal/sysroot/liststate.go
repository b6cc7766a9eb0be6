package sysroot

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// deployListPath is the engine's own record of deployment-list order and
// per-deployment bookkeeping (bootcsum, bootserial, pinned/unlocked/
// soft-reboot state). Upstream ostree derives this purely from on-disk
// deploy directories plus loader-entry file order; this engine is invoked
// per-command rather than run as a long-lived daemon; one process's
// `write_deployments` call has no way to hand the next invocation its
// in-memory deployment slice. Persisting a small index file alongside the
// spec-mandated layout resolves that without changing anything §6 names,
// and each entry's .origin file (also written, per spec) remains the
// cross-tool-readable source of truth for the refspec alone.
const deployListFileName = "deploylist"

func (s *Sysroot) deployListPath() string {
	return filepath.Join(s.path, "ostree", "deploy", deployListFileName)
}

// ListDeployments returns the persisted deployment list in order (index 0
// is the default/most-preferred deployment).
func (s *Sysroot) ListDeployments() ([]Deployment, error) {
	data, err := os.ReadFile(s.deployListPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ostreeerr.ErrIO, s.deployListPath(), err)
	}

	var list []Deployment
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		d, err := parseDeployLine(line)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, nil
}

// SaveDeploymentList persists list as the new canonical order.
func (s *Sysroot) SaveDeploymentList(list []Deployment) error {
	var b strings.Builder
	for _, d := range list {
		b.WriteString(formatDeployLine(d))
		b.WriteByte('\n')
	}
	path := s.deployListPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ostreeerr.ErrIO, path, err)
	}
	return nil
}

func formatDeployLine(d Deployment) string {
	fields := []string{
		d.OSName,
		d.Commit.String(),
		strconv.Itoa(d.DeploySerial),
		d.BootCsum,
		strconv.Itoa(d.BootSerial),
		strconv.FormatBool(d.Pinned),
		strconv.Itoa(int(d.Unlocked)),
		strconv.FormatBool(d.SoftReboot),
		escapeField(d.Origin),
		escapeField(d.Options),
	}
	return strings.Join(fields, "\t")
}

func parseDeployLine(line string) (Deployment, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 10 {
		return Deployment{}, fmt.Errorf("%w: malformed deploy list line %q", ostreeerr.ErrCorrupt, line)
	}
	commit, err := objects.ParseChecksum(fields[1])
	if err != nil {
		return Deployment{}, err
	}
	deploySerial, err := strconv.Atoi(fields[2])
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: malformed deployserial in %q", ostreeerr.ErrCorrupt, line)
	}
	bootSerial, err := strconv.Atoi(fields[4])
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: malformed bootserial in %q", ostreeerr.ErrCorrupt, line)
	}
	pinned, err := strconv.ParseBool(fields[5])
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: malformed pinned flag in %q", ostreeerr.ErrCorrupt, line)
	}
	unlockedInt, err := strconv.Atoi(fields[6])
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: malformed unlocked state in %q", ostreeerr.ErrCorrupt, line)
	}
	softReboot, err := strconv.ParseBool(fields[7])
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: malformed soft-reboot flag in %q", ostreeerr.ErrCorrupt, line)
	}

	return Deployment{
		OSName:       fields[0],
		Commit:       commit,
		DeploySerial: deploySerial,
		BootCsum:     fields[3],
		BootSerial:   bootSerial,
		Pinned:       pinned,
		Unlocked:     UnlockedState(unlockedInt),
		SoftReboot:   softReboot,
		Origin:       unescapeField(fields[8]),
		Options:      unescapeField(fields[9]),
	}, nil
}

// escapeField/unescapeField protect the tab-separated format against
// options strings that might (improbably) contain a literal tab.
func escapeField(s string) string {
	return strings.ReplaceAll(s, "\t", "\\t")
}

func unescapeField(s string) string {
	return strings.ReplaceAll(s, "\\t", "\t")
}
