package recording

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// OutputName is the merged file inside a call directory.
	OutputName = "recording.webm"
	// MimeType of the merged output.
	MimeType = "audio/webm"
)

var chunkNameRE = regexp.MustCompile(`^chunk_(\d+)\.webm$`)

// Chunk is one uploaded piece of a call's audio.
type Chunk struct {
	Index int
	Name  string
	Path  string
	Size  int64
}

// Storage lays out recordings on disk:
//
//	<root>/call_<id>/chunk_<n>.webm
//	<root>/call_<id>/recording.webm
//
// The chunk index comes from the call's counter, so ordering is recoverable
// from filenames alone.
type Storage struct {
	root string
}

func NewStorage(root string) (*Storage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("recording root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}
	return &Storage{root: root}, nil
}

func (s *Storage) Root() string { return s.root }

func (s *Storage) CallDir(callID int64) string {
	return filepath.Join(s.root, callDirName(callID))
}

func callDirName(callID int64) string {
	return fmt.Sprintf("call_%d", callID)
}

func chunkName(index int) string {
	return fmt.Sprintf("chunk_%d.webm", index)
}

// OutputRel is the recording path stored on the CallLog, relative to the root.
func OutputRel(callID int64) string {
	return filepath.ToSlash(filepath.Join(callDirName(callID), OutputName))
}

// Resolve maps a stored relative recording path to an absolute file path.
// Paths escaping the root are rejected.
func (s *Storage) Resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", ErrNotFound
	}
	return filepath.Join(s.root, clean), nil
}

// WriteChunk stores one chunk through a temp file and rename, so readers
// never see a partially written chunk_<n>.webm.
func (s *Storage) WriteChunk(callID int64, index int, r io.Reader) (int64, error) {
	if r == nil {
		return 0, ErrInvalidArgument
	}
	dir := s.CallDir(callID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create call directory: %w", err)
	}

	tmpPath := filepath.Join(dir, ".upload-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp chunk file: %w", err)
	}

	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write chunk bytes: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close chunk file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, chunkName(index))); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move chunk into place: %w", err)
	}
	return size, nil
}

// ListChunks returns the call's chunks in ascending numeric order.
// A missing call directory is reported as os.ErrNotExist.
func (s *Storage) ListChunks(callID int64) ([]Chunk, error) {
	dir := s.CallDir(callID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := chunkNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, Chunk{
			Index: idx,
			Name:  e.Name(),
			Path:  filepath.Join(dir, e.Name()),
			Size:  info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// sameChunks compares (name, size) signatures of two listings.
func sameChunks(a, b []Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Size != b[i].Size {
			return false
		}
	}
	return true
}
