// Package archive reads and writes snapshot archives. A snapshot archive
// holds the regular files of one save directory, stored with paths relative
// to that directory, in one of three container formats. Archives may
// additionally be wrapped in streaming encryption (DARE via minio/sio).
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/savewarden/savewarden/internal/cryptoutil"
)

const (
	FormatZip     = "zip"
	FormatTarGz   = "tar.gz"
	FormatTarZstd = "tar.zst"
)

const encSuffix = ".enc"

// Info describes the archive form encoded in a snapshot file name.
type Info struct {
	Format    string
	Encrypted bool
}

// Suffix returns the file name suffix for a format, e.g. ".zip" or
// ".tar.zst.enc".
func Suffix(format string, encrypted bool) string {
	s := "." + format
	if encrypted {
		s += encSuffix
	}
	return s
}

// Recognize reports whether name carries a known archive suffix.
func Recognize(name string) (Info, bool) {
	base := name
	info := Info{}
	if strings.HasSuffix(base, encSuffix) {
		info.Encrypted = true
		base = strings.TrimSuffix(base, encSuffix)
	}
	switch {
	case strings.HasSuffix(base, "."+FormatZip):
		info.Format = FormatZip
	case strings.HasSuffix(base, "."+FormatTarGz):
		info.Format = FormatTarGz
	case strings.HasSuffix(base, "."+FormatTarZstd):
		info.Format = FormatTarZstd
	default:
		return Info{}, false
	}
	return info, true
}

// TrimName strips a recognized archive suffix from a snapshot name. Names
// without one are returned unchanged.
func TrimName(name string) string {
	info, ok := Recognize(name)
	if !ok {
		return name
	}
	return strings.TrimSuffix(name, Suffix(info.Format, info.Encrypted))
}

// Create writes all regular files under sourceDir into a new archive at
// dst, overwriting any existing file there. A non-nil key wraps the archive
// in streaming encryption; the caller is expected to have chosen a dst name
// carrying the matching suffix. A failed create may leave a partial file
// behind.
func Create(format, dst, sourceDir string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	writer := io.Writer(out)
	closers := []io.Closer{}
	if key != nil {
		encWriter, err := cryptoutil.EncryptWriter(writer, key)
		if err != nil {
			out.Close()
			return err
		}
		writer = encWriter
		closers = append(closers, encWriter)
	}

	switch format {
	case FormatZip:
		err = writeZip(writer, sourceDir)
	case FormatTarGz, FormatTarZstd:
		err = writeTar(format, writer, sourceDir)
	default:
		err = fmt.Errorf("unsupported archive format: %s", format)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if cerr := closers[i].Close(); err == nil {
			err = cerr
		}
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// Extract unpacks the archive at src into destDir, restoring file modes and
// modification times. Entry names are confined to destDir.
func Extract(src, destDir string, key []byte) error {
	info, ok := Recognize(filepath.Base(src))
	if !ok {
		return fmt.Errorf("unrecognized archive: %s", filepath.Base(src))
	}
	if info.Encrypted && key == nil {
		return fmt.Errorf("archive %s is encrypted but no key is configured", filepath.Base(src))
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	switch info.Format {
	case FormatZip:
		return extractZip(src, destDir, info.Encrypted, key)
	case FormatTarGz, FormatTarZstd:
		return extractTar(info.Format, src, destDir, info.Encrypted, key)
	}
	return fmt.Errorf("unsupported archive format: %s", info.Format)
}

// entryPath validates an archive entry name and maps it under destDir.
func entryPath(destDir, name string) (string, error) {
	native := filepath.FromSlash(name)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return filepath.Join(destDir, native), nil
}

// walkFiles visits every regular file under sourceDir with its
// slash-separated relative path.
func walkFiles(sourceDir string, fn func(path, rel string, info fs.FileInfo) error) error {
	return filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, filepath.ToSlash(rel), info)
	})
}
