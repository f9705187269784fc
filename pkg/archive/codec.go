// Package archive packs a directory tree into a gzip-compressed tar stream
// and unpacks such a stream back into a directory tree. Archives preserve
// relative paths and directory structure; contents are streamed file by file
// so large profile directories are never buffered whole in memory.
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
	"strings"
)

// ErrCorrupt indicates the archive stream is malformed and cannot be
// extracted. Match with errors.Is.
var ErrCorrupt = errors.New("archive corrupt")

// Pack writes a tar.gz stream of the directory tree rooted at dirPath to w.
// Entry names are slash-separated paths relative to dirPath.
//
// Files that disappear between the walk and the read are skipped: the
// profile owner may mutate the directory while it is being packed, and a
// best-effort snapshot is preferred over a failed cycle.
func Pack(dirPath string, w io.Writer) error {
	if _, err := os.Stat(dirPath); err != nil {
		return fmt.Errorf("failed to read archive source %s: %w", dirPath, err)
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dirPath && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == dirPath {
			return nil
		}

		rel, err := filepath.Rel(dirPath, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		// Only regular files and directories are archived; sockets, pipes
		// and symlinks in a profile are not restorable state.
		switch {
		case info.IsDir():
			header := &tar.Header{
				Name:     name + "/",
				Mode:     int64(info.Mode().Perm()),
				Typeflag: tar.TypeDir,
				ModTime:  info.ModTime(),
			}
			return tarWriter.WriteHeader(header)
		case info.Mode().IsRegular():
			return packFile(tarWriter, path, name, info)
		default:
			return nil
		}
	})
	if walkErr != nil {
		return fmt.Errorf("failed to pack %s: %w", dirPath, walkErr)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}
	return nil
}

func packFile(tw *tar.Writer, path, name string, info fs.FileInfo) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	header := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	// CopyN against the header size: if the file grew since Stat, the extra
	// bytes would corrupt the stream for every following entry.
	written, err := io.CopyN(tw, file, info.Size())
	if err == io.EOF && written < info.Size() {
		// File shrank mid-read; pad so the entry stays well-formed.
		_, err = tw.Write(make([]byte, info.Size()-written))
	}
	return err
}

// PackFile packs dirPath into a new archive file at archivePath.
// The partial file is removed on failure.
func PackFile(dirPath, archivePath string) error {
	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file %s: %w", archivePath, err)
	}

	if err := Pack(dirPath, file); err != nil {
		file.Close()
		os.Remove(archivePath)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("failed to close archive file %s: %w", archivePath, err)
	}
	return nil
}

// Unpack extracts a tar.gz stream into destDir, recreating subdirectories.
// destDir must already exist. Malformed stream data fails with an error
// wrapping ErrCorrupt; filesystem write failures are wrapped as-is.
func Unpack(r io.Reader, destDir string) error {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := unpackFile(tarReader, target, header); err != nil {
				return err
			}
		default:
			// Skip entry types Pack never produces.
		}
	}
}

func unpackFile(tr *tar.Reader, target string, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	mode := fs.FileMode(header.Mode).Perm()
	if mode == 0 {
		mode = 0600
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}

	if _, err := io.Copy(file, tr); err != nil {
		file.Close()
		if isStreamError(err) {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", target, err)
	}
	return nil
}

// UnpackFile extracts the archive file at archivePath into destDir.
func UnpackFile(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive file %s: %w", archivePath, err)
	}
	defer file.Close()

	return Unpack(file, destDir)
}

// isStreamError distinguishes malformed archive data from filesystem write
// failures during extraction.
func isStreamError(err error) bool {
	return errors.Is(err, tar.ErrHeader) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, gzip.ErrHeader)
}

// securePath joins destDir and the entry name, rejecting entries that would
// escape destDir.
func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrCorrupt, name)
	}
	return target, nil
}
