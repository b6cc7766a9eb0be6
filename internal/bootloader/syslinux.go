package bootloader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Syslinux regenerates syslinux.cfg: a DEFAULT line plus one LABEL / KERNEL
// / INITRD / APPEND block per entry, preserving any non-ostree-managed
// labels already present in the existing config.
type Syslinux struct {
	bootDir string
}

func (s *Syslinux) Name() string { return "syslinux" }

func (s *Syslinux) configPath(bootversion int) string {
	return filepath.Join(s.bootDir, fmt.Sprintf("loader.%d", bootversion), "syslinux.cfg")
}

// WriteConfig implements Adapter.
func (s *Syslinux) WriteConfig(_ context.Context, bootDir string, bootversion int, entries []Entry) error {
	s.bootDir = bootDir
	foreign := s.readForeignLabels()

	var buf bytes.Buffer
	if len(entries) > 0 {
		fmt.Fprintf(&buf, "DEFAULT %s\n", labelName(entries[0]))
	}
	buf.WriteString("TIMEOUT 50\n")
	for _, e := range entries {
		fmt.Fprintf(&buf, "LABEL %s\n", labelName(e))
		fmt.Fprintf(&buf, "  KERNEL %s\n", e.Linux)
		fmt.Fprintf(&buf, "  INITRD %s\n", e.Initrd)
		fmt.Fprintf(&buf, "  APPEND %s\n", e.Options)
	}
	buf.WriteString(foreign)

	path := s.configPath(bootversion)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapIO("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return wrapIO("write", path, err)
	}
	return nil
}

func labelName(e Entry) string {
	return fmt.Sprintf("ostree-%s-%s-%d", e.OSName, e.Commit, e.BootSerial)
}

// readForeignLabels returns any LABEL blocks in the previous generation's
// config that are not ostree-managed (label doesn't start with "ostree-"),
// so a hand-maintained rescue entry survives regeneration. It reads through
// the boot/loader symlink, which still points at the active generation
// while WriteConfig runs.
func (s *Syslinux) readForeignLabels() string {
	data, err := os.ReadFile(filepath.Join(s.bootDir, "loader", "syslinux.cfg"))
	if err != nil || len(data) == 0 {
		return ""
	}

	var out strings.Builder
	keep := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "LABEL ") {
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "LABEL "))
			keep = !strings.HasPrefix(name, "ostree-")
		} else if strings.HasPrefix(trimmed, "DEFAULT ") || strings.HasPrefix(trimmed, "TIMEOUT ") {
			keep = false
		}
		if keep {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String()
}
