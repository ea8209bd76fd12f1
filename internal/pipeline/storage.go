package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Storage archives the uploaded invoice images
type Storage interface {
	// Save writes data under name and returns the name to retrieve it by
	Save(name string, data []byte) (string, error)

	Get(name string) ([]byte, error)

	Delete(name string) error
}

// LocalStorage keeps archived images in one directory on disk
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "creating storage directory")
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "writing file")
	}
	return name, nil
}

func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}
	return data, nil
}

func (l *LocalStorage) Delete(name string) error {
	path, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}

// resolve maps name into basePath. Names that would escape it are refused.
func (l *LocalStorage) resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Newf("invalid storage name %q", name)
	}
	return filepath.Join(l.basePath, name), nil
}
