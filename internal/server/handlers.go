package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/foxseedlab/rockhype/internal/device"
	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/studio"
	"github.com/gorilla/mux"
)

const defaultListLimit = 50

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()

	id, err := s.sessions.Start(ctx)
	if err != nil {
		status := s.sessions.Status()
		writeJSON(w, startErrorCode(err), errorResponse{Error: status.Message, State: status.State.String()})
		return
	}
	writeJSON(w, http.StatusOK, startResponse{SessionID: id, Status: s.sessions.Status()})
}

func startErrorCode(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, device.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, device.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.Context()); err != nil {
		slog.Error("failed to stop session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to stop the session."})
		return
	}
	resp := stopResponse{Status: s.sessions.Status()}
	if res, ok := s.sessions.LastResult(); ok {
		resp.Result = newResultResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	entries := s.sessions.Transcript()
	writeJSON(w, http.StatusOK, transcriptResponse{SessionID: s.sessions.Status().SessionID, Entries: entries})
}

func (s *Server) handleAlbumCover(w http.ResponseWriter, r *http.Request) {
	var req albumCoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Request body must be JSON."})
			return
		}
	}
	size, err := generation.ParseImageSize(req.Size)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ctx, cancel := generationContext(r)
	defer cancel()
	item, err := s.studio.AlbumCover(ctx, size)
	if err != nil {
		writeGenerationError(w, "album_cover", err)
		return
	}
	writeJSON(w, http.StatusOK, newMediaResponse(item))
}

func (s *Server) handleEditImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Upload an image and an instruction."})
		return
	}
	source, err := readUpload(r, "image", "image/jpeg")
	if err != nil || source == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Upload an image to edit."})
		return
	}
	ctx, cancel := generationContext(r)
	defer cancel()
	item, err := s.studio.EditImage(ctx, *source, r.FormValue("instruction"))
	if err != nil {
		writeGenerationError(w, "image_edit", err)
		return
	}
	writeJSON(w, http.StatusOK, newMediaResponse(item))
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Send the video prompt as a form."})
		return
	}
	aspect, err := generation.ParseVideoAspect(r.FormValue("aspect_ratio"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	seed, err := readUpload(r, "image", "image/png")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "The seed image could not be read."})
		return
	}
	ctx, cancel := generationContext(r)
	defer cancel()
	item, err := s.studio.Video(ctx, r.FormValue("prompt"), aspect, seed)
	if err != nil {
		writeGenerationError(w, "video", err)
		return
	}
	writeJSON(w, http.StatusOK, newMediaResponse(item))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Upload an audio clip."})
		return
	}
	clip, err := readUpload(r, "audio", "audio/mp3")
	if err != nil || clip == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Upload an audio clip."})
		return
	}
	name := "upload"
	if _, header, err := r.FormFile("audio"); err == nil {
		name = header.Filename
	}
	ctx, cancel := generationContext(r)
	defer cancel()
	attrs, err := s.studio.AnalyzeSong(ctx, *clip, name)
	if err != nil {
		writeGenerationError(w, "song_analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	sessions, err := s.archive.ListSessions(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load the archive."})
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, newSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.archive.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("failed to get session", "error", err, "session_id", id)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load the session."})
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Session not found."})
		return
	}
	entries, err := s.archive.ListEntriesBySessionID(r.Context(), id)
	if err != nil {
		slog.Error("failed to list transcript entries", "error", err, "session_id", id)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load the session."})
		return
	}
	artifacts, err := s.archive.ListArtifactsBySessionID(r.Context(), id)
	if err != nil {
		slog.Error("failed to list artifacts", "error", err, "session_id", id)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load the session."})
		return
	}
	writeJSON(w, http.StatusOK, newSessionDetailResponse(*sess, entries, artifacts))
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rc, item, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to open media", "error", err, "name", name)
		http.Error(w, "failed to open media", http.StatusBadRequest)
		return
	}
	defer rc.Close()
	if item.MIMEType != "" {
		w.Header().Set("Content-Type", item.MIMEType)
	}
	http.ServeContent(w, r, item.Name, time.Time{}, rc)
}

func generationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), generationTimeout)
}

// readUpload returns nil without error when the field is absent.
func readUpload(r *http.Request, field, defaultMIME string) (*generation.Blob, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	return &generation.Blob{Data: data, MIMEType: uploadMIME(header, defaultMIME)}, nil
}

func uploadMIME(header *multipart.FileHeader, fallback string) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return fallback
}

func writeGenerationError(w http.ResponseWriter, kind string, err error) {
	code := http.StatusBadGateway
	if errors.Is(err, generation.ErrInvalidInput) {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, errorResponse{Error: studio.FailureMessage(kind, err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
