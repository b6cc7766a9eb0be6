package bootloader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/pkg/executer"
)

// DefaultScriptPath is the external grub2 config-generation script invoked
// by Grub2.WriteConfig, mirroring the convention of a distro-supplied
// "grub2-ostree-config" helper that owns vendor-specific quirks.
const DefaultScriptPath = "/usr/libexec/grub2-ostree-script"

// Grub2 delegates config generation to an external script: the assembled
// menu is written to a staging file, and the script is invoked with that
// file's path as its sole argument (the spec's "invoked with the fd of the
// target config file" adapted to this engine's Executer interface, which
// only exchanges stdout/stderr/exit code, not file descriptors).
type Grub2 struct {
	bootDir    string
	exec       executer.Executer
	ScriptPath string
}

func (g *Grub2) Name() string { return "grub2" }

func (g *Grub2) scriptPath() string {
	if g.ScriptPath != "" {
		return g.ScriptPath
	}
	return DefaultScriptPath
}

// WriteConfig implements Adapter.
func (g *Grub2) WriteConfig(ctx context.Context, bootDir string, bootversion int, entries []Entry) error {
	g.bootDir = bootDir
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "menuentry '%s' {\n", e.Title)
		fmt.Fprintf(&buf, "\tlinux %s %s\n", e.Linux, e.Options)
		fmt.Fprintf(&buf, "\tinitrd %s\n", e.Initrd)
		buf.WriteString("}\n")
	}

	grubDir := filepath.Join(bootDir, fmt.Sprintf("loader.%d", bootversion), "grub2")
	if err := os.MkdirAll(grubDir, 0o755); err != nil {
		return wrapIO("mkdir", grubDir, err)
	}
	stagedPath := filepath.Join(grubDir, "grub.cfg")
	if err := os.WriteFile(stagedPath, buf.Bytes(), 0o644); err != nil {
		return wrapIO("write", stagedPath, err)
	}

	if g.exec == nil {
		return nil
	}
	_, stderr, code := g.exec.ExecuteWithContext(ctx, g.scriptPath(), stagedPath)
	if code != 0 {
		return fmt.Errorf("%w: grub2 script %s exited %d: %s", ostreeerr.ErrIO, g.scriptPath(), code, stderr)
	}
	return nil
}
