// Package textpatch appends guarded blocks to user-owned text files without
// ever duplicating them.
package textpatch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// HasLine reports whether content contains line as a complete line, ignoring
// trailing whitespace and CRLF endings.
func HasLine(content []byte, line string) bool {
	want := strings.TrimRight(line, " \t\r")
	for _, existing := range strings.Split(string(content), "\n") {
		if strings.TrimRight(existing, " \t\r") == want {
			return true
		}
	}
	return false
}

// AppendOnce appends marker followed by lines to path unless the block's
// first line is already present. Blocks under the same marker with a
// different first line are appended alongside. Parent directories and the
// file are created as needed. It reports whether a write happened.
func AppendOnce(fs afero.Fs, path, marker string, lines []string) (bool, error) {
	existing, err := afero.ReadFile(fs, path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	key := marker
	if len(lines) > 0 {
		key = lines[0]
	}
	if HasLine(existing, key) {
		return false, nil
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", path, err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	if len(existing) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString(marker)
	buf.WriteByte('\n')
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	perm := os.FileMode(0o644)
	if info, err := fs.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
