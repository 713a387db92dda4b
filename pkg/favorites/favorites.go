// Package favorites keeps copies of often-used payload files in a directory,
// so they can be executed by name.
package favorites

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/nxboot/rcmx/pkg/payload"
)

var ErrNotFound = errors.New("favorite not found")

// Store is a favorites directory.
type Store struct {
	dir string
}

// New opens the favorites directory dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create favorites directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

type Favorite struct {
	Name string
	Path string
}

// Read builds the favorite's payload.
func (f Favorite) Read() (*payload.Payload, error) {
	return payload.Read(f.Path)
}

func (s *Store) favorite(name string) Favorite {
	return Favorite{
		Name: name,
		Path: filepath.Join(s.dir, name),
	}
}

// List returns all favorites, sorted by name.
func (s *Store) List() ([]Favorite, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("could not list favorites: %w", err)
	}
	var res []Favorite
	for _, ent := range entries {
		if ent.IsDir() {
			glog.Warningf("Skipping directory %q in favorites", ent.Name())
			continue
		}
		res = append(res, s.favorite(ent.Name()))
	}
	slices.SortFunc(res, func(a, b Favorite) int {
		return strings.Compare(a.Name, b.Name)
	})
	return res, nil
}

// Get returns the favorite called name, or ErrNotFound.
func (s *Store) Get(name string) (Favorite, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) {
		return Favorite{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	fav := s.favorite(name)
	st, err := os.Stat(fav.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Favorite{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return Favorite{}, err
	}
	if st.IsDir() {
		return Favorite{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return fav, nil
}

// Add copies the file at path into the store, under its base name. If
// validate is set, the file must build into a payload first. An existing
// favorite of the same name is replaced.
func (s *Store) Add(path string, validate bool) (Favorite, error) {
	name := strings.TrimSpace(filepath.Base(path))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return Favorite{}, fmt.Errorf("not a file: %q", path)
	}
	if validate {
		if _, err := payload.Read(path); err != nil {
			return Favorite{}, err
		}
	}

	fav := s.favorite(name)
	if err := copyFile(path, fav.Path); err != nil {
		return Favorite{}, fmt.Errorf("could not add favorite: %w", err)
	}
	glog.Infof("Added favorite %q", name)
	return fav, nil
}

// Remove deletes the favorite called name.
func (s *Store) Remove(name string) error {
	fav, err := s.Get(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fav.Path); err != nil {
		return fmt.Errorf("could not remove favorite: %w", err)
	}
	glog.Infof("Removed favorite %q", fav.Name)
	return nil
}

// copyFile writes dst through a temporary file in the same directory, so
// that a failed copy never leaves a truncated favorite behind.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".add-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
