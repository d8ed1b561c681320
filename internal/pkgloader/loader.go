// Package pkgloader implements the Package Loader: a content-addressed
// cache of downloaded/copied packages, keyed "<name>-<version>" under a
// cache root, with real archive extraction (a zip archive is inflated
// into the cache directory, rather than the placeholder empty-directory
// behavior of the system this was adapted from).
package pkgloader

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Loader downloads, extracts, and installs Hatch packages through an
// injected filesystem, so tests can run entirely against
// afero.NewMemMapFs() without touching the real disk.
type Loader struct {
	fs       afero.Fs
	cacheDir string
	client   *http.Client
}

// New creates a Loader rooted at cacheDir on fs.
func New(fs afero.Fs, cacheDir string, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if err := fs.MkdirAll(cacheDir, 0o755); err != nil {
		// Best-effort: surfaced again on first real operation if it
		// genuinely can't be created.
		_ = err
	}
	return &Loader{fs: fs, cacheDir: cacheDir, client: client}
}

func (l *Loader) cachePath(name, version string) string {
	return filepath.Join(l.cacheDir, fmt.Sprintf("%s-%s", name, version))
}

// cached returns the cache path for (name, version) if it already exists.
func (l *Loader) cached(name, version string) (string, bool) {
	p := l.cachePath(name, version)
	if info, err := l.fs.Stat(p); err == nil && info.IsDir() {
		return p, true
	}
	return "", false
}

// DownloadPackage fetches packageURL (a zip archive), extracts it, and
// caches the result at "<cacheDir>/<name>-<version>". A cache hit skips
// the network entirely.
func (l *Loader) DownloadPackage(packageURL, name, version string) (string, error) {
	if p, ok := l.cached(name, version); ok {
		return p, nil
	}

	resp, err := l.client.Get(packageURL)
	if err != nil {
		return "", fmt.Errorf("pkgloader: download %q: %w", packageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pkgloader: download %q: unexpected status %s", packageURL, resp.Status)
	}

	tmp, err := afero.TempFile(l.fs, l.cacheDir, ".download-*.zip")
	if err != nil {
		return "", fmt.Errorf("pkgloader: create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		_ = l.fs.Remove(tmp.Name())
	}()
	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return "", fmt.Errorf("pkgloader: read download body: %w", err)
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return "", fmt.Errorf("pkgloader: not a valid zip archive: %w", err)
	}

	target := l.cachePath(name, version)
	stagingTarget := target + ".staging"
	_ = l.fs.RemoveAll(stagingTarget)
	if err := l.extractZip(zr, stagingTarget); err != nil {
		_ = l.fs.RemoveAll(stagingTarget)
		return "", fmt.Errorf("pkgloader: extract package: %w", err)
	}

	_ = l.fs.RemoveAll(target)
	if err := l.fs.Rename(stagingTarget, target); err != nil {
		return "", fmt.Errorf("pkgloader: finalize cache entry: %w", err)
	}
	return target, nil
}

// extractZip inflates every entry in zr under destDir, rejecting any
// entry path that would escape destDir (zip-slip).
func (l *Loader) extractZip(zr *zip.Reader, destDir string) error {
	if err := l.fs.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		cleaned := filepath.Clean(f.Name)
		if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
			return fmt.Errorf("pkgloader: unsafe archive entry %q", f.Name)
		}
		outPath := filepath.Join(destDir, cleaned)

		if f.FileInfo().IsDir() {
			if err := l.fs.MkdirAll(outPath, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := l.fs.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := l.fs.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

// CopyPackage copies an already-extracted package directory to target,
// replacing any existing contents at target.
func (l *Loader) CopyPackage(source, target string) error {
	return l.copyTree(source, target)
}

// InstallLocalPackage copies a local package directory (sourcePath) into
// targetDir/packageName.
func (l *Loader) InstallLocalPackage(sourcePath, targetDir, packageName string) (string, error) {
	target := filepath.Join(targetDir, packageName)
	if err := l.copyTree(sourcePath, target); err != nil {
		return "", fmt.Errorf("pkgloader: install local package %q: %w", packageName, err)
	}
	return target, nil
}

// InstallRemotePackage downloads (or reuses the cache for) a remote
// package and copies it into targetDir/packageName.
func (l *Loader) InstallRemotePackage(packageURL, name, version, targetDir string) (string, error) {
	downloaded, err := l.DownloadPackage(packageURL, name, version)
	if err != nil {
		return "", err
	}
	target := filepath.Join(targetDir, name)
	if err := l.copyTree(downloaded, target); err != nil {
		return "", fmt.Errorf("pkgloader: install remote package %q: %w", name, err)
	}
	return target, nil
}

// ClearCache removes cached packages: both name and version given clears
// one entry; name only clears every version of that package; neither
// clears the entire cache.
func (l *Loader) ClearCache(name, version string) error {
	switch {
	case name != "" && version != "":
		return l.fs.RemoveAll(l.cachePath(name, version))
	case name != "":
		entries, err := afero.ReadDir(l.fs, l.cacheDir)
		if err != nil {
			return err
		}
		prefix := name + "-"
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
				if err := l.fs.RemoveAll(filepath.Join(l.cacheDir, e.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return l.fs.RemoveAll(l.cacheDir)
	}
}

func (l *Loader) copyTree(source, target string) error {
	if err := l.fs.RemoveAll(target); err != nil {
		return err
	}
	return afero.Walk(l.fs, source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(target, rel)
		if info.IsDir() {
			return l.fs.MkdirAll(dest, 0o755)
		}
		src, err := l.fs.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		if err := l.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := l.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, src)
		return err
	})
}
