package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// pngHeader is the 8-byte PNG signature followed by an IHDR chunk stub.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// WriteImage writes a small PNG-looking file for reference image uploads and
// returns its path.
func WriteImage(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
