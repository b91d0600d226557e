package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// fileName builds the durable artifact name: {owner}_{artifact}.apk with the
// owner sanitized so caller-supplied ids cannot traverse the artifact dir.
func fileName(ownerID, artifactID string) string {
	return sanitize(ownerID) + "_" + artifactID + ".apk"
}

func sanitize(s string) string {
	if s == "" {
		return "guest"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "guest"
	}
	return out
}

// copyFile copies src into dir/name atomically: write to a temp file in the
// same directory, then rename over the final path.
func copyFile(src, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open signed artifact: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("flush artifact: %w", err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("place artifact: %w", err)
	}
	return dst, nil
}
