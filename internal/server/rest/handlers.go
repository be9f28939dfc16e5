package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filekeeper/internal/common"
)

// errorResponse is the fixed error body. The id is unique per response so
// a client report can be correlated with the server log.
type errorResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (s *RestServer) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	resp := errorResponse{Message: message, ID: uuid.NewString()}

	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "message", message, "error_id", resp.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps service error kinds to HTTP statuses.
func (s *RestServer) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrorInvalidInput):
		s.writeError(ctx, w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, common.ErrorUnauthorized):
		s.writeError(ctx, w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrorNotFound):
		s.writeError(ctx, w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorConflict):
		s.writeError(ctx, w, http.StatusConflict, "already exists")
	default:
		s.logger.Error(ctx, "unexpected service error", "error", err)
		s.writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	AuthToken string `json:"auth-token"`
}

func (s *RestServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		s.collector.RecordLogin(false)
		s.writeServiceError(r.Context(), w, err)
		return
	}

	s.collector.RecordLogin(true)
	writeJSON(w, http.StatusOK, loginResponse{AuthToken: token})
}

func (s *RestServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, http.StatusBadRequest, "malformed request body")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Login, req.Password)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	s.logger.Info(r.Context(), "registered", "login", user.Login)
	writeJSON(w, http.StatusCreated, map[string]string{"login": user.Login})
}

func (s *RestServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	if err := s.auth.Revoke(r.Context(), token); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type changePasswordRequest struct {
	OldPassword string `json:"old-password"`
	NewPassword string `json:"new-password"`
}

func (s *RestServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *RestServer) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(r.Context(), w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	infos, err := s.files.List(r.Context(), userID, limit)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, infos)
}

// uploadPart finds the "file" part of the multipart body without buffering
// the content.
func uploadPart(r *http.Request) (*multipart.Part, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, fmt.Errorf("expected multipart/form-data")
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, fmt.Errorf("missing file part")
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *RestServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	part, err := uploadPart(r)
	if err != nil {
		s.writeError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}
	defer part.Close()

	record, err := s.files.Upload(r.Context(), userID, part, part.FileName(), r.URL.Query().Get("filename"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	s.collector.RecordUploadBytes(record.Size)
	s.logger.Info(r.Context(), "uploaded", "filename", record.Filename, "size", record.Size)
	writeJSON(w, http.StatusOK, map[string]any{"filename": record.Filename, "size": record.Size})
}

func (s *RestServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	filename := r.URL.Query().Get("filename")
	record, rc, err := s.files.Download(r.Context(), userID, filename)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(record.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": record.Filename}))

	n, err := io.Copy(w, rc)
	if err != nil {
		// Headers are gone; the truncated body is all we can signal.
		s.logger.Error(r.Context(), "download interrupted", "filename", record.Filename, "written", n, "error", err)
		return
	}
	s.collector.RecordDownloadBytes(n)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *RestServer) handleRename(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r.Context(), w, http.StatusBadRequest, "malformed request body")
		return
	}

	record, err := s.files.Rename(r.Context(), userID, r.URL.Query().Get("filename"), req.Name)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"filename": record.Filename, "size": record.Size})
}

func (s *RestServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
		return
	}

	if err := s.files.Delete(r.Context(), userID, r.URL.Query().Get("filename")); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
