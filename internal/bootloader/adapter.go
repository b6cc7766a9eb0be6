package bootloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/pkg/executer"
	"github.com/coreos/ostree-engine/pkg/log"
)

// Adapter writes a bootversion's worth of entries into a bootloader's
// native configuration format.
type Adapter interface {
	// WriteConfig regenerates the bootloader's configuration for the given
	// bootversion from entries, in list order. entries[0] is the default.
	WriteConfig(ctx context.Context, bootDir string, bootversion int, entries []Entry) error

	// Name identifies the variant for logging ("syslinux", "uboot", "grub2").
	Name() string
}

// Probe detects which bootloader variant is installed under bootDir,
// per spec §4.6: syslinux if boot/syslinux/syslinux.cfg is a symlink, uboot
// if boot/uEnv.txt is a symlink, else grub2 as the fallback/default.
func Probe(bootDir string, exec executer.Executer) (Adapter, error) {
	log := log.NewPrefixLogger("bootloader")

	if isSymlink(filepath.Join(bootDir, "syslinux", "syslinux.cfg")) {
		log.Debug("detected syslinux bootloader")
		return &Syslinux{bootDir: bootDir}, nil
	}
	if isSymlink(filepath.Join(bootDir, "uEnv.txt")) {
		log.Debug("detected uboot bootloader")
		return &Uboot{bootDir: bootDir}, nil
	}
	log.Debug("defaulting to grub2 bootloader")
	return &Grub2{bootDir: bootDir, exec: exec}, nil
}

func isSymlink(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeSymlink != 0
}

func wrapIO(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ostreeerr.ErrIO, op, path, err)
}
