package clickpack

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// unzipToTempDir extracts a zip archive into a fresh directory under
// the OS temp root and returns its path. The directory is registered
// for CleanupTemp.
func unzipToTempDir(path string) (string, error) {
	dir := filepath.Join(os.TempDir(), randomTempDirName())
	for {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			break
		}
		dir = filepath.Join(os.TempDir(), randomTempDirName())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("clickpack: create temp dir: %w", err)
	}
	rememberTempDir(dir)

	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("clickpack: open zip %s: %w", path, err)
	}
	defer zr.Close()

	slog.Info("extracting clickpack archive", "zip", path, "dir", dir)
	for _, f := range zr.File {
		if err := extractZipFile(f, dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func extractZipFile(f *zip.File, dir string) error {
	// reject entries that would escape the extraction root
	dest := filepath.Join(dir, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("clickpack: zip entry %q escapes extraction dir", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("clickpack: open zip entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("clickpack: extract %q: %w", f.Name, err)
	}
	return nil
}
