package bootloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// Uboot writes boot/uEnv.txt: a single entry, the first in the list, with
// no menu. u-boot environments have no concept of a default selection
// beyond "the only entry present".
type Uboot struct {
	bootDir string
}

func (u *Uboot) Name() string { return "uboot" }

// WriteConfig implements Adapter.
func (u *Uboot) WriteConfig(_ context.Context, bootDir string, _ int, entries []Entry) error {
	u.bootDir = bootDir
	if len(entries) == 0 {
		return fmt.Errorf("%w: uboot: no boot entries to write", ostreeerr.ErrInvalidArgument)
	}
	e := entries[0]

	content := fmt.Sprintf("kernel_image=%s\nramdisk_image=%s\nbootargs=%s\n", e.Linux, e.Initrd, e.Options)

	path := filepath.Join(bootDir, "uEnv.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return wrapIO("write", path, err)
	}
	return nil
}
