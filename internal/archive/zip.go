package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/savewarden/savewarden/internal/cryptoutil"
)

func writeZip(w io.Writer, sourceDir string) error {
	zw := zip.NewWriter(w)
	err := walkFiles(sourceDir, func(path, rel string, info fs.FileInfo) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = rel
		header.Method = zip.Deflate
		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func extractZip(src, destDir string, encrypted bool, key []byte) error {
	path := src
	if encrypted {
		// The zip reader needs random access, so decrypt to a scratch file.
		plain, err := decryptToTemp(src, key)
		if err != nil {
			return err
		}
		defer os.Remove(plain)
		path = plain
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := entryPath(destDir, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if err := writeEntry(target, file); err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func writeEntry(target string, file *zip.File) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, file.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !file.Modified.IsZero() {
		_ = os.Chtimes(target, file.Modified, file.Modified)
	}
	return nil
}

func decryptToTemp(src string, key []byte) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	plain, err := cryptoutil.DecryptReader(in, key)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "savewarden-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, plain); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("decrypt archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
