package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
)

// RootDir is the single top-level entry of a build package
const RootDir = "build"

// NewPackageName returns a fresh build_<uuid>.tar.gz name
func NewPackageName() string {
	return fmt.Sprintf("build_%s.tar.gz", strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Pack writes a gzip tarball of stagingDir into outDir. Every entry lives under
// "build/" and entries are written in lexical order. A partially written tarball
// is removed on failure.
func Pack(stagingDir, outDir string) (*model.BuildPackage, error) {
	name := NewPackageName()
	pkgPath := filepath.Join(outDir, name)

	f, err := os.OpenFile(pkgPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fsError(err, "failed to create build package", pkgPath)
	}

	if err := writeTarball(f, stagingDir); err != nil {
		_ = f.Close()
		_ = os.Remove(pkgPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(pkgPath)
		return nil, fsError(err, "failed to close build package", pkgPath)
	}

	info, err := os.Stat(pkgPath)
	if err != nil {
		return nil, fsError(err, "failed to stat build package", pkgPath)
	}

	return &model.BuildPackage{
		Name: name,
		Path: pkgPath,
		Size: info.Size(),
	}, nil
}

func writeTarball(w io.Writer, stagingDir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(stagingDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fsError(err, "failed to walk staging directory", p)
		}

		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			return fsError(err, "failed to resolve staged path", p)
		}
		name := RootDir
		if rel != "." {
			name = path.Join(RootDir, filepath.ToSlash(rel))
		}

		info, err := d.Info()
		if err != nil {
			return fsError(err, "failed to stat staged path", p)
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fsError(err, "failed to create tar header", p)
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fsError(err, "failed to write tar header", p)
		}
		if d.IsDir() {
			return nil
		}

		return appendFile(tw, p)
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fsError(err, "failed to finish tar stream", stagingDir)
	}
	if err := gz.Close(); err != nil {
		return fsError(err, "failed to finish gzip stream", stagingDir)
	}
	return nil
}

func appendFile(tw *tar.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fsError(err, "failed to open staged file", p)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fsError(err, "failed to write staged file to tarball", p)
	}
	return nil
}
