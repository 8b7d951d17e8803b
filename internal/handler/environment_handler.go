package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"environment-key-service/internal/domain"
	"environment-key-service/internal/usecase"
	"environment-key-service/pkg/httputil"
)

// EnvironmentHandler は環境のHTTPハンドラを提供する。
type EnvironmentHandler struct {
	service *usecase.EnvironmentService
}

// NewEnvironmentHandler は新しいEnvironmentHandlerを生成する。
func NewEnvironmentHandler(service *usecase.EnvironmentService) *EnvironmentHandler {
	return &EnvironmentHandler{service: service}
}

// CreateEnvironmentRequest は環境作成のリクエスト形式。enabled 省略時は true。
type CreateEnvironmentRequest struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     *bool  `json:"enabled"`
}

// EnvironmentResponse は環境のレスポンス形式。
type EnvironmentResponse struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toEnvironmentResponse(e *domain.Environment) EnvironmentResponse {
	return EnvironmentResponse{
		ID:          e.ID,
		ProjectID:   e.ProjectID,
		Name:        e.Name,
		Description: e.Description,
		Enabled:     e.Enabled,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// CreateEnvironment は環境を作成する。
func (h *EnvironmentHandler) CreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req CreateEnvironmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	env := &domain.Environment{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if err := h.service.Create(r.Context(), env); err != nil {
		writeServiceError(w, r, environmentErrorMappings, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, toEnvironmentResponse(env))
}

// GetEnvironment は環境を取得する。
func (h *EnvironmentHandler) GetEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := h.service.Read(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, environmentErrorMappings, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toEnvironmentResponse(env))
}

// DeleteEnvironment は環境と紐づく鍵を削除する。
func (h *EnvironmentHandler) DeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, environmentErrorMappings, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
