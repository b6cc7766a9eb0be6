// Package bootloader translates the boot entries assembled by
// internal/sysroot into the native on-disk configuration of the host's
// bootloader (spec §4.6). It probes for the installed variant the same way
// internal/bootimage/manager.go probes for bootc vs rpm-ostree support: try
// each candidate's detection signal in order, fall back to a default.
package bootloader

// Entry is one bootable entry: the fields needed to render a boot menu item
// or a u-boot/syslinux single-entry config, independent of which variant
// renders it.
type Entry struct {
	OSName     string
	Commit     string
	BootCsum   string
	BootSerial int
	Title      string
	Version    string
	Linux      string
	Initrd     string
	Options    string
}
