package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/lingualink/internal/health"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/utterance"
	"github.com/MrWong99/lingualink/pkg/history"
)

// historyRateLimit is the per-client request budget shared by /api/history
// and /api/transcripts.
const historyRateLimit = 30

// routes builds the HTTP API for the configured mode.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(a.metrics))

	origins := a.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Traceparent"},
		MaxAge:         300,
	}))

	health.New(a.checkers...).Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if a.relay != nil {
		r.Method(http.MethodGet, "/ws", a.relay)
		return r
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(historyRateLimit, time.Minute))
			r.Get("/history", a.handleHistory)
			r.Get("/transcripts", a.handleTranscripts)
		})
		r.Get("/captions", a.handleCaptions)
		r.Post("/playback/resume", a.handleResume)
	})
	return r
}

// handleHistory serves GET /api/history?meeting_id=... with the stored
// translations of that meeting, oldest first.
func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		writeError(w, http.StatusBadRequest, "meeting_id is required")
		return
	}
	records, err := a.history.QueryHistory(r.Context(), meetingID)
	if err != nil {
		observe.Logger(r.Context()).Error("history query failed", "meeting_id", meetingID, "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if records == nil {
		records = []history.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleTranscripts serves GET /api/transcripts?meeting_id=... with the
// untranslated finals of that meeting, oldest first.
func (a *App) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		writeError(w, http.StatusBadRequest, "meeting_id is required")
		return
	}
	records, err := a.history.QueryTranscripts(r.Context(), meetingID)
	if err != nil {
		observe.Logger(r.Context()).Error("transcript query failed", "meeting_id", meetingID, "err", err)
		writeError(w, http.StatusInternalServerError, "transcripts unavailable")
		return
	}
	if records == nil {
		records = []history.TranscriptRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// captionView is the JSON form of a buffered utterance.
type captionView struct {
	ID             string    `json:"id"`
	SpeakerID      string    `json:"speakerId"`
	SpeakerName    string    `json:"speakerName,omitempty"`
	SourceLang     string    `json:"sourceLang"`
	Text           string    `json:"text"`
	TranslatedText string    `json:"translatedText,omitempty"`
	IsFinal        bool      `json:"isFinal"`
	Timestamp      time.Time `json:"timestamp"`
}

type captionsResponse struct {
	Status   string        `json:"status"`
	Captions []captionView `json:"captions"`
}

// handleCaptions serves GET /api/captions with the current buffer contents
// and the playback status.
func (a *App) handleCaptions(w http.ResponseWriter, _ *http.Request) {
	snap := a.pipe.Snapshot()
	resp := captionsResponse{
		Status:   a.pipe.Status(),
		Captions: make([]captionView, 0, len(snap)),
	}
	for _, u := range snap {
		resp.Captions = append(resp.Captions, toView(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleResume serves POST /api/playback/resume, the user action that
// unblocks speech output.
func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	a.pipe.Resume()
	observe.Logger(r.Context()).Info("playback resumed")
	writeJSON(w, http.StatusOK, map[string]string{"status": a.pipe.Status()})
}

func toView(u utterance.Utterance) captionView {
	return captionView{
		ID:             u.ID,
		SpeakerID:      u.SpeakerID,
		SpeakerName:    u.SpeakerName,
		SourceLang:     u.SourceLang,
		Text:           u.Text,
		TranslatedText: u.TranslatedText,
		IsFinal:        u.IsFinal,
		Timestamp:      u.Timestamp,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
