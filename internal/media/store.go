package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	// Decoders for the accepted upload types.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// nameAttempts bounds the search for a free timestamped file name.
const nameAttempts = 16

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrNotImage        = errors.New("file is not a decodable image")
	ErrInvalidName     = errors.New("invalid image name")
	ErrImageNotFound   = errors.New("image not found")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Upload is a stored image and the colour extracted from it.
type Upload struct {
	Image string `json:"image"`
	Color string `json:"color"`
}

// Store keeps uploaded images in one directory.
type Store struct {
	dir string
	now func() time.Time

	// mu serialises name allocation.
	mu sync.Mutex
}

// NewStore creates dir if needed and returns a Store over it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("image directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory images are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Save decodes the image read from src and writes it under a name built
// from the current time in milliseconds and the extension of original.
// The content must decode as the image it claims to be.
func (s *Store) Save(original string, src io.Reader) (*Upload, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotImage, err)
	}

	name, err := s.write(ext, data)
	if err != nil {
		return nil, err
	}
	return &Upload{Image: name, Color: DominantColor(img)}, nil
}

func (s *Store) write(ext string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UnixMilli()
	for i := range int64(nameAttempts) {
		name := strconv.FormatInt(stamp+i, 10) + ext
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating image file: %w", err)
		}

		_, err = f.Write(data)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(path) //nolint:errcheck // best-effort cleanup of a partial file
			return "", fmt.Errorf("writing image file: %w", err)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free image name after %d attempts", nameAttempts)
}

// Path returns the file path of a stored image. Names that could escape
// the directory return ErrInvalidName.
func (s *Store) Path(name string) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}

	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", ErrImageNotFound
	case err != nil:
		return "", fmt.Errorf("checking image: %w", err)
	case !info.Mode().IsRegular():
		return "", ErrImageNotFound
	}
	return path, nil
}

func validName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Sweep deletes the images not named in keep that were last modified
// before cutoff, and returns how many were removed. Newer files survive
// so an upload is not lost before the plant referencing it is saved.
func (s *Store) Sweep(keep []string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading image directory: %w", err)
	}

	used := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		used[name] = struct{}{}
	}

	var (
		removed int
		errs    []error
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if _, ok := used[entry.Name()]; ok {
			continue
		}

		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		err = os.Remove(filepath.Join(s.dir, entry.Name()))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", entry.Name(), err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
