package ptyadapter

import (
	"bufio"
	"os"
	"strings"
)

// hardcodedShells is the fallback allow-list consulted when /etc/shells is
// missing or doesn't list the requested path. Ordered by preference for
// DefaultShell.
var hardcodedShells = []string{
	"/bin/bash",
	"/usr/bin/bash",
	"/bin/zsh",
	"/usr/bin/zsh",
	"/bin/sh",
	"/usr/bin/sh",
	"/bin/dash",
	"/bin/fish",
	"/usr/bin/fish",
	"/bin/ksh",
	"/bin/tcsh",
	"/bin/csh",
}

// systemShells reads the OS shell whitelist (/etc/shells), ignoring blank
// lines and comments. A missing file yields an empty set rather than an
// error; callers fall back to the hard-coded allow-list.
func systemShells() map[string]bool {
	set := make(map[string]bool)
	f, err := os.Open("/etc/shells")
	if err != nil {
		return set
	}
	defer f.Close()
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = true
	}
	return set
}

// ValidateShellPath checks path against the security constraint: it must be
// absolute, refer to an existing regular file, and appear in either the OS
// shell whitelist or the hard-coded allow-list. On any failure it returns
// DefaultShell() instead so spawn always has a usable shell.
func ValidateShellPath(path string) string {
	if isValidShellPath(path) {
		return path
	}
	return DefaultShell()
}

func isValidShellPath(path string) bool {
	if path == "" || !strings.HasPrefix(path, "/") {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if systemShells()[path] {
		return true
	}
	for _, s := range hardcodedShells {
		if s == path {
			return true
		}
	}
	return false
}

// DefaultShell picks the first usable shell from the hard-coded allow-list,
// preferring $SHELL when it itself validates.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); isValidShellPath(sh) {
		return sh
	}
	for _, s := range hardcodedShells {
		if info, err := os.Stat(s); err == nil && info.Mode().IsRegular() {
			return s
		}
	}
	return "/bin/sh"
}
