package utils

import (
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// ErrUnsafeFilename rejects lookups that are not a plain basename.
var ErrUnsafeFilename = errors.New("unsafe filename")

// EnsureDir creates the directory (and parents) if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, os.ModePerm)
}

// SaveFile writes the uploaded file to destPath, creating the parent
// directory as needed. Stored files are write-once; nothing ever
// rewrites an existing proof.
func SaveFile(fileHeader *multipart.FileHeader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, file)
	return err
}

// SafeJoin resolves name inside root, refusing anything that is not a
// plain basename so directory traversal can't escape the upload root.
func SafeJoin(root, name string) (string, error) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrUnsafeFilename
	}
	return filepath.Join(root, base), nil
}
