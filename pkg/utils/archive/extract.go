package archive

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
)

// Extract unpacks a build package into destDir and returns the extracted file names
// as stored in the tarball.
func Extract(pkgPath, destDir string) ([]string, error) {
	f, err := os.Open(pkgPath)
	if err != nil {
		return nil, fsError(err, "failed to open build package", pkgPath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fsError(err, "failed to read gzip stream", pkgPath)
	}
	defer gz.Close()

	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fsError(err, "failed to read tar entry", pkgPath)
		}

		if err := extractEntry(tr, hdr, destDir); err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			files = append(files, hdr.Name)
		}
	}

	return files, nil
}

// extractEntry writes a single tar entry below destDir
func extractEntry(r io.Reader, hdr *tar.Header, destDir string) error {
	// Security check: prevent path traversal attacks
	destPath := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return goerr.New("invalid file path detected",
			goerr.T(types.ErrTagFilesystem),
			goerr.V("name", hdr.Name),
			goerr.V("dest", destPath),
		)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(destPath, 0755); err != nil {
			return fsError(err, "failed to create directory", destPath)
		}
		return nil
	case tar.TypeReg:
	default:
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fsError(err, "failed to create parent directories", filepath.Dir(destPath))
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return fsError(err, "failed to create destination file", destPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fsError(err, "failed to copy file content", destPath)
	}
	return nil
}
