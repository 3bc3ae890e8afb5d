package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

// Matcher reports whether a working tree path is excluded from the build
type Matcher interface {
	Match(path string) bool
}

// Stage copies every file of the working tree at root that is not excluded by m into
// stagingDir, keeping relative paths. stagingDir is deleted and recreated first so no
// file of a previous run survives. Symbolic links are followed.
func Stage(ctx context.Context, root, stagingDir string, m Matcher) (*model.StagingManifest, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fsError(err, "failed to resolve working tree root", root)
	}
	absStaging, err := filepath.Abs(stagingDir)
	if err != nil {
		return nil, fsError(err, "failed to resolve staging directory", stagingDir)
	}

	if err := os.RemoveAll(absStaging); err != nil {
		return nil, fsError(err, "failed to remove staging directory", absStaging)
	}
	if err := os.MkdirAll(absStaging, 0755); err != nil {
		return nil, fsError(err, "failed to create staging directory", absStaging)
	}

	w := &walker{
		ctx:       ctx,
		root:      absRoot,
		staging:   absStaging,
		matcher:   m,
		ancestors: map[string]bool{},
	}
	if real, err := filepath.EvalSymlinks(absRoot); err == nil {
		w.ancestors[real] = true
	}

	if err := w.walk(absRoot, ""); err != nil {
		return nil, err
	}

	sort.Strings(w.files)
	logging.From(ctx).Debug("Staged working tree",
		"root", absRoot,
		"staging_dir", absStaging,
		"file_count", len(w.files),
	)

	return &model.StagingManifest{
		Dir:   absStaging,
		Files: w.files,
	}, nil
}

type walker struct {
	ctx     context.Context
	root    string
	staging string
	matcher Matcher
	files   []string

	// resolved directories on the current descent; a link back to one of them is a cycle
	ancestors map[string]bool
}

func (w *walker) walk(dir, rel string) error {
	if err := w.ctx.Err(); err != nil {
		return goerr.Wrap(err, "staging interrupted", goerr.T(types.ErrTagFilesystem))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fsError(err, "failed to read directory", dir)
	}

	for _, entry := range entries {
		fullPath := filepath.Join(dir, entry.Name())
		relPath := path.Join(rel, entry.Name())

		if fullPath == w.staging {
			continue
		}

		info, err := os.Stat(fullPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// dangling symlink
				logging.From(w.ctx).Warn("Skipping broken link", "path", relPath)
				continue
			}
			return fsError(err, "failed to stat file", fullPath)
		}

		if info.IsDir() {
			real, err := filepath.EvalSymlinks(fullPath)
			if err != nil {
				return fsError(err, "failed to resolve directory", fullPath)
			}
			if w.ancestors[real] {
				continue
			}

			w.ancestors[real] = true
			err = w.walk(fullPath, relPath)
			delete(w.ancestors, real)
			if err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}
		if w.matcher.Match("./" + relPath) {
			continue
		}

		dst := filepath.Join(w.staging, filepath.FromSlash(relPath))
		if err := copyFile(fullPath, dst, info.Mode().Perm()); err != nil {
			return err
		}
		w.files = append(w.files, relPath)
	}

	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fsError(err, "failed to create parent directories", filepath.Dir(dst))
	}

	in, err := os.Open(src)
	if err != nil {
		return fsError(err, "failed to open source file", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fsError(err, "failed to create staged file", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fsError(err, "failed to copy file content", dst)
	}
	if err := out.Close(); err != nil {
		return fsError(err, "failed to close staged file", dst)
	}
	return nil
}

func fsError(err error, msg, path string) error {
	return goerr.Wrap(err, msg, goerr.T(types.ErrTagFilesystem), goerr.V("path", path))
}
