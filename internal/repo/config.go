package repo

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// VerityMode selects how aggressively stage_content asks the kernel to
// enable per-file integrity protection (spec §4.3, "Verity").
type VerityMode int

const (
	VerityOff VerityMode = iota
	VerityOpportunistic
	VerityRequired
)

func parseVerityMode(s string) (VerityMode, error) {
	switch s {
	case "", "off", "no", "false":
		return VerityOff, nil
	case "opportunistic", "maybe":
		return VerityOpportunistic, nil
	case "required", "yes", "true":
		return VerityRequired, nil
	default:
		return 0, fmt.Errorf("repo: unknown fsverity mode %q", s)
	}
}

// Config is the parsed contents of a repository's "config" file: a small,
// flat key=value format grouped into bracketed sections. No library in this
// engine's dependency set speaks this dialect (it predates, and is simpler
// than, either TOML or YAML), so it's parsed by hand here rather than
// reaching for a general-purpose format library for two dozen lines of
// input.
type Config struct {
	Mode   Mode
	Verity VerityMode
}

func defaultConfig() Config {
	return Config{Mode: ModeBare, Verity: VerityOff}
}

// parseConfig reads the INI-style "[section]\nkey = value" format used by
// the repository's config file.
func parseConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: open repo config: %w", ostreeerr.ErrIO, err)
	}
	defer f.Close()

	cfg := defaultConfig()
	section := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("%w: repo config line without '=': %q", ostreeerr.ErrCorrupt, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if section != "core" {
			continue
		}
		switch key {
		case "mode":
			mode, err := parseMode(value)
			if err != nil {
				return Config{}, err
			}
			cfg.Mode = mode
		case "fsverity":
			v, err := parseVerityMode(value)
			if err != nil {
				return Config{}, err
			}
			cfg.Verity = v
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, fmt.Errorf("%w: read repo config: %w", ostreeerr.ErrIO, err)
	}
	return cfg, nil
}

// marshalConfig renders Config back to the on-disk INI format, used by
// repository initialization.
func marshalConfig(cfg Config) []byte {
	var b strings.Builder
	b.WriteString("[core]\n")
	fmt.Fprintf(&b, "mode = %s\n", cfg.Mode)
	switch cfg.Verity {
	case VerityOpportunistic:
		b.WriteString("fsverity = opportunistic\n")
	case VerityRequired:
		b.WriteString("fsverity = required\n")
	}
	return []byte(b.String())
}
