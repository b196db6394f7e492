// Package resource maps request URLs onto files under a document root and
// exposes them as read-only memory mappings.
package resource

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// FilenameLen bounds the joined document root + URL path, terminator
// included.
const FilenameLen = 200

var (
	ErrNotFound    = errors.New("resource not found")
	ErrForbidden   = errors.New("resource not world-readable")
	ErrIsDirectory = errors.New("resource is a directory")
	ErrPathTooLong = errors.New("resource path too long")
	ErrTraversal   = errors.New("resource path escapes document root")
	ErrAccess      = errors.New("resource cannot be mapped")
)

// File is a resolved, memory-mapped static file
type File struct {
	Path    string
	Size    int64
	Mode    uint32
	ModTime time.Time

	// Data aliases the mapping; nil for empty files.
	Data []byte
}

// Unmap releases the mapping. Safe to call more than once.
func (f *File) Unmap() error {
	if f == nil || f.Data == nil {
		return nil
	}
	err := unix.Munmap(f.Data)
	f.Data = nil
	return err
}

// Resolver resolves URLs against a fixed document root
type Resolver struct {
	Root string

	// AllowDotDot disables rejection of ".." path segments.
	AllowDotDot bool
}

// NewResolver creates a resolver for root. A trailing slash is dropped
// since URLs always start with one.
func NewResolver(root string, allowDotDot bool) *Resolver {
	return &Resolver{
		Root:        strings.TrimRight(root, "/"),
		AllowDotDot: allowDotDot,
	}
}

// Resolve stats and maps the file named by url. Policies apply in order:
// path bound, stat failure, world-read permission, directory.
func (r *Resolver) Resolve(url string) (*File, error) {
	if !r.AllowDotDot && hasDotDot(url) {
		return nil, ErrTraversal
	}

	if len(r.Root)+len(url) > FilenameLen-1 {
		return nil, ErrPathTooLong
	}
	path := r.Root + url

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if st.Mode&unix.S_IROTH == 0 {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, path)
	}

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	f := &File{
		Path:    path,
		Size:    st.Size,
		Mode:    st.Mode,
		ModTime: time.Unix(st.Mtim.Unix()),
	}
	if f.Size == 0 {
		return f, nil
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAccess, path, err)
	}

	// the mapping stays valid after the descriptor is closed
	data, err := unix.Mmap(fd, 0, int(f.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	unix.Close(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrAccess, path, err)
	}

	f.Data = data
	return f, nil
}

func hasDotDot(url string) bool {
	if !strings.Contains(url, "..") {
		return false
	}
	for _, seg := range strings.Split(url, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
