package smbc

import (
	"os"
	"strings"
)

const PathSeparator = '\\'

func IsPathSeparator(c uint8) bool {
	return c == '\\'
}

// normPath converts a share-relative path to the wire form: backslash
// separated, without leading separators or "." components.
func normPath(path string) string {
	path = strings.ReplaceAll(path, `/`, `\`)

	parts := strings.Split(path, `\`)
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, `\`)
}

func validatePath(op, path string) error {
	if strings.ContainsAny(path, "\x00") {
		return &os.PathError{Op: op, Path: path, Err: ErrInvalidArgument}
	}
	for _, p := range strings.Split(path, `\`) {
		if p == ".." {
			return &os.PathError{Op: op, Path: path, Err: ErrInvalidArgument}
		}
	}
	return nil
}

// validateMountPath accepts \\server\share only.
func validateMountPath(path string) error {
	if !strings.HasPrefix(path, `\\`) {
		return &os.PathError{Op: "mount", Path: path, Err: ErrInvalidArgument}
	}
	parts := strings.Split(path[2:], `\`)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &os.PathError{Op: "mount", Path: path, Err: ErrInvalidArgument}
	}
	return nil
}

func base(path string) string {
	if path == "" {
		return `\`
	}
	if i := strings.LastIndexByte(path, PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}
