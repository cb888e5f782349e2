package httpapi

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"chatcall/internal/auth"
	"chatcall/internal/calllog"
	"chatcall/internal/history"
	"chatcall/internal/recording"
	"chatcall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxChunkBytes bounds one uploaded recording chunk.
const maxChunkBytes = 32 << 20

// defaultSummaryWindow is used when a summary request has no "from".
const defaultSummaryWindow = 30 * 24 * time.Hour

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Recording *recording.Service
	History   *history.Service
}

// --- Recording ---

func (h Handlers) UploadChunk(c *gin.Context) {
	uid, callID, ok := identityAndCall(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxChunkBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	idx, err := h.Recording.UploadChunk(c.Request.Context(), callID, uid, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "chunkIndex": idx})
}

func (h Handlers) Finalize(c *gin.Context) {
	uid, callID, ok := identityAndCall(c)
	if !ok {
		return
	}
	if err := h.Recording.Finalize(c.Request.Context(), callID, uid); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Play streams the merged recording with byte-range support.
func (h Handlers) Play(c *gin.Context) {
	m, f, ok := h.openMedia(c)
	if !ok {
		return
	}
	defer f.Close()
	if err := recording.ServeRange(c.Writer, c.Request, f, m.Size, m.MimeType); err != nil {
		logger.FromGin(c).Warn("playback interrupted", "call_id", m.CallID, "err", err)
	}
}

func (h Handlers) Download(c *gin.Context) {
	m, f, ok := h.openMedia(c)
	if !ok {
		return
	}
	defer f.Close()
	if err := recording.ServeDownload(c.Writer, f, m); err != nil {
		logger.FromGin(c).Warn("download interrupted", "call_id", m.CallID, "err", err)
	}
}

func (h Handlers) openMedia(c *gin.Context) (recording.Media, *os.File, bool) {
	uid, callID, ok := identityAndCall(c)
	if !ok {
		return recording.Media{}, nil, false
	}
	m, err := h.Recording.Open(c.Request.Context(), callID, uid)
	if err != nil {
		writeError(c, err)
		return recording.Media{}, nil, false
	}
	f, err := os.Open(m.Path)
	if err != nil {
		writeError(c, recording.ErrNotFound)
		return recording.Media{}, nil, false
	}
	return m, f, true
}

// --- Call history ---

func (h Handlers) CallHistory(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	page, ok := pageParams(c)
	if !ok {
		return
	}
	out, err := h.History.History(c.Request.Context(), uid, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Missed(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	page, ok := pageParams(c)
	if !ok {
		return
	}
	out, err := h.History.Missed(c.Request.Context(), uid, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) RoomHistory(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(c.Param("roomId"), 10, 64)
	if err != nil || roomID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	page, ok := pageParams(c)
	if !ok {
		return
	}
	out, err := h.History.Room(c.Request.Context(), roomID, uid, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Summary aggregates the caller's calls. from/to are RFC 3339; to defaults
// to now and from to 30 days before to.
func (h Handlers) Summary(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	to := time.Now().UTC()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		to = t
	}
	from := to.Add(-defaultSummaryWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		from = t
	}
	out, err := h.History.Summary(c.Request.Context(), history.SummaryRequest{
		UserID: uid,
		Range:  history.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func identity(c *gin.Context) (int64, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return 0, false
	}
	return uid, true
}

func identityAndCall(c *gin.Context) (int64, int64, bool) {
	uid, ok := identity(c)
	if !ok {
		return 0, 0, false
	}
	callID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || callID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return 0, 0, false
	}
	return uid, callID, true
}

func pageParams(c *gin.Context) (history.Page, bool) {
	var p history.Page
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
			return history.Page{}, false
		}
		*dst = n
	}
	return p, true
}

// writeError maps service errors to responses. Calls the user may not see
// look exactly like calls that do not exist.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recording.ErrNotFound), errors.Is(err, calllog.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, recording.ErrInvalidArgument), errors.Is(err, history.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
