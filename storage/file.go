package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileBackend stores the document in a single JSON file
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load() ([]byte, error) {
	data, err := ioutil.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading "+b.path)
	}
	return data, nil
}

// Save writes to a temp file next to the target and renames it over the old document
func (b *FileBackend) Save(data []byte) error {
	tmp, err := ioutil.TempFile(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "writing temp file")
	}

	if err = os.Rename(tmp.Name(), b.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "replacing "+b.path)
	}
	return nil
}
