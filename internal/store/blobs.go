package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Blobs stores image blobs as files in a directory it owns exclusively.
type Blobs struct {
	Dir string
}

// OpenBlobs returns a blob store rooted at dir, creating the directory if needed.
func OpenBlobs(dir string) (*Blobs, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &Blobs{Dir: dir}, nil
}

// Save writes data under name. The blob becomes visible only once it is
// completely written and synced; a failed write leaves no trace.
func (b *Blobs) Save(name string, data []byte) error {
	if err := validBlobName(name); err != nil {
		return &IOError{Op: "save", Name: name, Err: err}
	}

	tmp, err := os.CreateTemp(b.Dir, ".tmp-"+name+"-*")
	if err != nil {
		return &IOError{Op: "save", Name: name, Err: err}
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "save", Name: name, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "save", Name: name, Err: err}
	}
	if err := os.Rename(tmpName, filepath.Join(b.Dir, name)); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "save", Name: name, Err: err}
	}

	if err := syncDir(b.Dir); err != nil {
		return &IOError{Op: "save", Name: name, Err: err}
	}
	return nil
}

// Fetch returns the blob stored under name.
func (b *Blobs) Fetch(name string) ([]byte, error) {
	if err := validBlobName(name); err != nil {
		return nil, &IOError{Op: "fetch", Name: name, Err: err}
	}

	data, err := os.ReadFile(filepath.Join(b.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fetching blob %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, &IOError{Op: "fetch", Name: name, Err: err}
	}
	return data, nil
}

// Delete removes the blob stored under name. Deleting a missing blob is not an error.
func (b *Blobs) Delete(name string) error {
	if err := validBlobName(name); err != nil {
		return &IOError{Op: "delete", Name: name, Err: err}
	}

	err := os.Remove(filepath.Join(b.Dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// validBlobName rejects names that would escape the blob directory or
// collide with temp files.
func validBlobName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid blob name %q", name)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
