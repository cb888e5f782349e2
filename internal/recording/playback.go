package recording

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ByteRange is an inclusive byte span.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRange interprets a single-range "bytes=" header against size.
// ok is false when no range was requested. Multi-range and malformed
// headers are not satisfiable.
func ParseRange(header string, size int64) (r ByteRange, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ByteRange{Start: 0, End: size - 1}, false, nil
	}
	set, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(set, ",") {
		return ByteRange{}, false, ErrRangeNotSatisfiable
	}
	startStr, endStr, found := strings.Cut(strings.TrimSpace(set), "-")
	if !found {
		return ByteRange{}, false, ErrRangeNotSatisfiable
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// Suffix form: last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return ByteRange{}, false, ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: size - 1}, true, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return ByteRange{}, false, ErrRangeNotSatisfiable
	}
	end := size - 1
	if endStr != "" {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < start {
			return ByteRange{}, false, ErrRangeNotSatisfiable
		}
		if e < end {
			end = e
		}
	}
	return ByteRange{Start: start, End: end}, true, nil
}

// ServeRange writes content honoring a single byte range.
func ServeRange(w http.ResponseWriter, r *http.Request, content io.ReadSeeker, size int64, mime string) error {
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", mime)

	br, partial, err := ParseRange(r.Header.Get("Range"), size)
	if err != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	status := http.StatusOK
	length := size
	if partial {
		if _, err := content.Seek(br.Start, io.SeekStart); err != nil {
			return err
		}
		status = http.StatusPartialContent
		length = br.Length()
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err = io.CopyN(w, content, length)
	return err
}

// ServeDownload writes the whole file as an attachment named after the call.
func ServeDownload(w http.ResponseWriter, content io.Reader, m Media) error {
	h := w.Header()
	h.Set("Content-Type", m.MimeType)
	h.Set("Content-Length", strconv.FormatInt(m.Size, 10))
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="call_%d.webm"`, m.CallID))
	w.WriteHeader(http.StatusOK)
	_, err := io.CopyN(w, content, m.Size)
	return err
}
