package wizard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// maxFilenameLen caps the stored attachment name in bytes.
const maxFilenameLen = 255

var ErrTypeNotAllowed = errors.New("file type is not accepted as evidence")

// blockedTypes are content types that can run code when opened by an officer.
// SVG is listed because it can embed script.
var blockedTypes = []string{
	"text/html",
	"image/svg+xml",
	"text/javascript",
	"application/x-shellscript",
	"text/x-shellscript",
	"application/x-elf",
	"application/x-executable",
	"application/x-mach-binary",
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/java-archive",
}

func checkType(mt *mimetype.MIME) error {
	for m := mt; m != nil; m = m.Parent() {
		for _, blocked := range blockedTypes {
			if m.Is(blocked) {
				return fmt.Errorf("%w: %s", ErrTypeNotAllowed, mt.String())
			}
		}
	}
	return nil
}

// sanitizeFilename keeps only the base name of a client-supplied filename,
// drops control characters and truncates it, preserving the extension.
func sanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return "", ErrFilenameEmpty
	}
	name = filepath.Base(name)

	var sb strings.Builder
	for _, r := range name {
		if !unicode.IsControl(r) {
			sb.WriteRune(r)
		}
	}
	name = strings.TrimSpace(sb.String())
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrFilenameEmpty
	}

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxFilenameLen-len(ext)], "") + ext
	}
	return name, nil
}
