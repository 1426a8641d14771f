package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// workspace is the scratch directory owned by one run plus the files it has
// already handed over to the output directory.
type workspace struct {
	dir       string
	published []string
	removeAll func(path string) error
	link      func(oldname, newname string) error
	retry     func() backoff.BackOff
}

// handoff is one scratch file and its destination in the output directory.
type handoff struct {
	scratchName string
	dst         string
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// publish places every scratch file at its destination without replacing
// anything already there. When a destination exists, the files placed by
// this call are removed again and the returned error matches os.ErrExist.
// Any other failure leaves the placed files for rollback.
func (w *workspace) publish(files []handoff) error {
	start := len(w.published)
	for _, f := range files {
		err := w.link(w.path(f.scratchName), f.dst)
		if err == nil {
			w.published = append(w.published, f.dst)
			continue
		}
		err = fmt.Errorf("cannot publish %s: %w", f.dst, err)
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		placed := append([]string(nil), w.published[start:]...)
		w.published = w.published[:start]
		var rmErrs []error
		for _, p := range placed {
			if rmErr := w.removeWithRetry(p); rmErr != nil {
				w.published = append(w.published, p)
				rmErrs = append(rmErrs, rmErr)
			}
		}
		if len(rmErrs) > 0 {
			return fmt.Errorf("cannot undo partial publish: %w", errors.Join(rmErrs...))
		}
		return err
	}
	return nil
}

// rollback deletes files this run published before it failed. Files that
// belong to other runs are never in the list.
func (w *workspace) rollback() error {
	var errs []error
	for _, p := range w.published {
		if err := w.removeWithRetry(p); err != nil {
			errs = append(errs, err)
		}
	}
	w.published = nil
	return errors.Join(errs...)
}

// release deletes the scratch directory. Removal is retried briefly because
// a just-exited ffmpeg can still hold handles on some platforms.
func (w *workspace) release() error {
	if w.dir == "" {
		return nil
	}
	if err := w.removeWithRetry(w.dir); err != nil {
		return err
	}
	w.dir = ""
	return nil
}

func (w *workspace) removeWithRetry(path string) error {
	return backoff.Retry(func() error {
		err := w.removeAll(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}, w.retry())
}

// defaultCleanupBackOff retries three times, 100ms apart.
func defaultCleanupBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3)
}

// linkNoClobber creates newname with the contents of oldname and fails with
// an os.ErrExist error if newname is already present.
func linkNoClobber(oldname, newname string) error {
	err := os.Link(oldname, newname)
	if err == nil || errors.Is(err, os.ErrExist) {
		return err
	}
	// Filesystems without hard links get an exclusive copy instead.
	return copyExclusive(oldname, newname)
}

func copyExclusive(oldname, newname string) error {
	src, err := os.Open(oldname)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(newname, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(newname)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(newname)
		return err
	}
	return nil
}
