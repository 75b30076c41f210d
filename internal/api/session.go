package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/audio"
	"github.com/yok-tottii/EchoDoc/internal/dictation"
	"github.com/yok-tottii/EchoDoc/internal/generation"
	"github.com/yok-tottii/EchoDoc/internal/permissions"
)

// startRequest starts a session. Empty fields fall back to the settings.
type startRequest struct {
	Mode     string  `json:"mode"`
	DeviceID *string `json:"deviceId"`
}

type startResponse struct {
	SessionID string           `json:"sessionId"`
	Status    dictation.Status `json:"status"`
}

func (h *Handler) dictation(w http.ResponseWriter) (Dictation, bool) {
	if h.deps.Dictation == nil {
		h.writeError(w, unavailable("dictation"))
		return nil, false
	}
	return h.deps.Dictation, true
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}

	var req startRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}

	cfg := h.deps.Config.Clone()
	modeName := req.Mode
	if modeName == "" {
		modeName = cfg.CaptureMode
	}
	mode, err := audio.ParseMode(modeName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	deviceID := cfg.AudioDeviceID
	if req.DeviceID != nil {
		deviceID = *req.DeviceID
	}

	// The session outlives the request
	id, err := d.Start(context.WithoutCancel(r.Context()), mode, deviceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{SessionID: id, Status: d.Status()})
}

type controlResponse struct {
	Changed bool             `json:"changed"`
	Status  dictation.Status `json:"status"`
}

func (h *Handler) control(w http.ResponseWriter, op func(Dictation) (bool, error)) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	changed, err := op(d)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Changed: changed, Status: d.Status()})
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, func(d Dictation) (bool, error) { return d.Stop() })
}

func (h *Handler) pauseSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, func(d Dictation) (bool, error) { return d.Pause() })
}

func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, func(d Dictation) (bool, error) { return d.Resume() })
}

func (h *Handler) togglePause(w http.ResponseWriter, r *http.Request) {
	h.control(w, func(d Dictation) (bool, error) {
		_, err := d.TogglePause()
		return err == nil, err
	})
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	tr := d.Transcript()
	if tr == nil {
		h.writeError(w, apperr.New(apperr.KindConflict, "there is no transcript yet"))
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

type transcriptRequest struct {
	Text string `json:"text"`
}

func (h *Handler) putTranscript(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	var req transcriptRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	tr, err := d.SetTranscript(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// generateRequest asks for one document. Redact defaults to the setting.
type generateRequest struct {
	Type     string `json:"type"`
	Redact   *bool  `json:"redact"`
	FromType string `json:"fromType"`
}

func (h *Handler) generateDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	var body generateRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, err)
		return
	}

	if body.Type == "" {
		h.writeError(w, apperr.InvalidInput("type", "document type is required"))
		return
	}
	docType, err := generation.ParseDocumentType(body.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req := dictation.GenerateRequest{Type: docType, Redact: h.deps.Config.Clone().RedactByDefault}
	if body.Redact != nil {
		req.Redact = *body.Redact
	}
	if body.FromType != "" {
		from, err := generation.ParseDocumentType(body.FromType)
		if err != nil {
			h.writeError(w, apperr.InvalidInput("fromType", fmt.Sprintf("unknown document type %q", body.FromType)))
			return
		}
		req.FromType = from
	}

	// Generation keeps running if the window is closed meanwhile
	doc, err := d.Generate(context.WithoutCancel(r.Context()), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	docs := d.Documents()
	if docs == nil {
		docs = []generation.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// document looks up the document named in the URL
func (h *Handler) document(w http.ResponseWriter, r *http.Request) (*generation.Document, bool) {
	d, ok := h.dictation(w)
	if !ok {
		return nil, false
	}
	docType, err := generation.ParseDocumentType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	doc, ok := d.Document(docType)
	if !ok {
		h.writeError(w, apperr.New(apperr.KindConflict, "the document has not been generated"))
		return nil, false
	}
	return doc, true
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	if doc, ok := h.document(w, r); ok {
		writeJSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) copyDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	if h.deps.Clipboard == nil {
		h.writeError(w, unavailable("clipboard"))
		return
	}
	if err := h.deps.Clipboard.Copy(doc.Text); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to copy the document", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "copied"})
}

// pasteDocument types the document into the focused application
func (h *Handler) pasteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	if h.deps.Clipboard == nil {
		h.writeError(w, unavailable("clipboard"))
		return
	}

	if !h.deps.Permissions.IsAccessibilityAuthorized() {
		if h.deps.Notifier != nil {
			_ = h.deps.Notifier.AccessibilityPermissionDenied()
		}
		h.writeError(w, apperr.New(apperr.KindPermissionDenied, "accessibility access is needed to paste, grant it in System Settings").
			WithDetail("permission", string(permissions.Accessibility)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.deps.Clipboard.Paste(ctx, doc.Text); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to paste the document", err))
		return
	}
	if h.deps.Notifier != nil {
		_ = h.deps.Notifier.PasteComplete()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pasted"})
}

// downloadBackup serves the recording kept after a failed transcription
func (h *Handler) downloadBackup(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	backup := d.Backup()
	if backup == nil {
		h.writeError(w, apperr.Conflict("no backup recording is available"))
		return
	}

	mimeType := backup.MimeType
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+dictation.BackupFileName(backup)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(backup.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(backup.Data)
}

type saveBackupRequest struct {
	Dir string `json:"dir"`
}

func (h *Handler) saveBackup(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dictation(w)
	if !ok {
		return
	}
	var req saveBackupRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}
	dir := req.Dir
	if dir == "" {
		dir = h.deps.BackupDir
	}
	if dir == "" {
		h.writeError(w, apperr.InvalidInput("dir", "a directory is required"))
		return
	}

	path, err := d.SaveBackup(dir)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// historySession is a history row as the window shows it
type historySession struct {
	ID           string     `json:"id"`
	Mode         string     `json:"mode"`
	State        string     `json:"state"`
	StopReason   string     `json:"stopReason,omitempty"`
	MimeType     string     `json:"mimeType,omitempty"`
	EncodedBytes int64      `json:"encodedBytes"`
	DurationMs   int64      `json:"durationMs"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

type historyDocument struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model,omitempty"`
	Redacted  bool      `json:"redacted"`
	CreatedAt time.Time `json:"createdAt"`
}

type historyDetail struct {
	Transcript *dictation.Transcript `json:"transcript,omitempty"`
	Documents  []historyDocument     `json:"documents"`
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeJSON(w, http.StatusOK, []historySession{})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			h.writeError(w, apperr.InvalidInput("limit", "must be between 1 and 500"))
			return
		}
		limit = n
	}

	sessions, err := h.deps.History.RecentSessions(r.Context(), limit)
	if err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to read history", err))
		return
	}

	out := make([]historySession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, historySession{
			ID:           s.ID,
			Mode:         s.Mode,
			State:        s.State,
			StopReason:   s.StopReason,
			MimeType:     s.MimeType,
			EncodedBytes: s.EncodedBytes,
			DurationMs:   s.Duration.Milliseconds(),
			Error:        s.Error,
			StartedAt:    s.StartedAt,
			EndedAt:      s.EndedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		h.writeError(w, unavailable("history"))
		return
	}
	id := chi.URLParam(r, "id")

	tr, err := h.deps.History.TranscriptFor(r.Context(), id)
	if err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to read history", err))
		return
	}
	docs, err := h.deps.History.DocumentsFor(r.Context(), id)
	if err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to read history", err))
		return
	}

	detail := historyDetail{Documents: make([]historyDocument, 0, len(docs))}
	if tr != nil {
		detail.Transcript = &dictation.Transcript{
			SessionID:  tr.SessionID,
			Text:       tr.Text,
			Provider:   tr.Provider,
			Language:   tr.Language,
			Confidence: tr.Confidence,
			Manual:     tr.Manual,
			CreatedAt:  tr.CreatedAt,
		}
	}
	for _, d := range docs {
		detail.Documents = append(detail.Documents, historyDocument{
			ID:        d.ID,
			Type:      d.Type,
			Text:      d.Text,
			Provider:  d.Provider,
			Model:     d.Model,
			Redacted:  d.Redacted,
			CreatedAt: d.CreatedAt,
		})
	}
	if detail.Transcript == nil && len(docs) == 0 {
		h.writeError(w, apperr.NotFound("session"))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
