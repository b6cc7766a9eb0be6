package sysroot

import (
	"os"
	"path/filepath"
	"strings"
)

// deploymentTitle derives a boot-menu title from the deployment's
// /etc/os-release, preferring PRETTY_NAME and falling back to ID, per
// spec §4.5 ("Title is derived from the deployment's /etc/os-release
// PRETTY_NAME or ID").
func deploymentTitle(deployDir string) string {
	data, err := os.ReadFile(filepath.Join(deployDir, "etc", "os-release"))
	if err != nil {
		data, err = os.ReadFile(filepath.Join(deployDir, "usr", "lib", "os-release"))
		if err != nil {
			return "ostree"
		}
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[k] = strings.Trim(v, `"`)
	}
	if v, ok := vars["PRETTY_NAME"]; ok && v != "" {
		return v
	}
	if v, ok := vars["ID"]; ok && v != "" {
		return v
	}
	return "ostree"
}
