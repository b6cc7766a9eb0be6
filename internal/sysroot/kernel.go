package sysroot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// locateKernel finds the kernel and initramfs shipped in a checked-out
// deployment tree, under the conventional /usr/lib/modules/<version>/
// location, and returns their paths relative to deployDir along with the
// kernel version string.
func locateKernel(deployDir string) (kernelRel, initrdRel, version string, err error) {
	modulesDir := filepath.Join(deployDir, "usr", "lib", "modules")
	entries, err := os.ReadDir(modulesDir)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: no kernel found under %s: %w", ostreeerr.ErrInvalidArgument, modulesDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		version = e.Name()
		kernelRel = filepath.Join("usr", "lib", "modules", version, "vmlinuz")
		initrdRel = filepath.Join("usr", "lib", "modules", version, "initramfs.img")
		if _, err := os.Stat(filepath.Join(deployDir, kernelRel)); err == nil {
			return kernelRel, initrdRel, version, nil
		}
	}
	return "", "", "", fmt.Errorf("%w: no usable kernel under %s", ostreeerr.ErrInvalidArgument, modulesDir)
}

// computeBootcsum derives the bootcsum identifying a (kernel, initramfs)
// pair: the sha256 of their concatenated contents, hex-encoded. Upstream
// ostree computes this the same way (treating the kernel+initrd pair as the
// unit that must match for two deployments to share a boot.N.M bootlink
// entry); it's recomputed here rather than reusing the commit's own
// checksum because two different commits may ship byte-identical kernels.
func computeBootcsum(kernelPath, initrdPath string) (string, error) {
	h := sha256.New()
	for _, p := range []string{kernelPath, initrdPath} {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %w", ostreeerr.ErrIO, p, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
