package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/savewarden/savewarden/internal/cryptoutil"
)

func writeTar(format string, w io.Writer, sourceDir string) error {
	compressed, err := wrapWriter(format, w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(compressed)

	err = walkFiles(sourceDir, func(path, rel string, info fs.FileInfo) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if cerr := tw.Close(); err == nil {
		err = cerr
	}
	if cerr := compressed.Close(); err == nil {
		err = cerr
	}
	return err
}

func extractTar(format, src, destDir string, encrypted bool, key []byte) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	payload := io.Reader(in)
	if encrypted {
		payload, err = cryptoutil.DecryptReader(payload, key)
		if err != nil {
			return err
		}
	}
	decompressed, err := wrapReader(format, payload)
	if err != nil {
		return err
	}
	defer decompressed.Close()

	tr := tar.NewReader(decompressed)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		target, err := entryPath(destDir, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeTarEntry(target, tr, header); err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}
		}
	}
}

func writeTarEntry(target string, tr *tar.Reader, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, tr); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !header.ModTime.IsZero() {
		_ = os.Chtimes(target, header.ModTime, header.ModTime)
	}
	return nil
}

func wrapWriter(format string, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case FormatTarGz:
		return gzip.NewWriter(w), nil
	case FormatTarZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

func wrapReader(format string, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTarGz:
		return gzip.NewReader(r)
	case FormatTarZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{Decoder: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
