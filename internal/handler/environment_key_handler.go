// Package handler はHTTPハンドラを提供する。
package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"environment-key-service/internal/domain"
	"environment-key-service/internal/middleware"
	"environment-key-service/internal/usecase"
	"environment-key-service/pkg/httputil"
)

// 監査ログの操作名
const (
	opCreateKey   = "CREATE_ENVIRONMENT_KEY"
	opGetKey      = "GET_ENVIRONMENT_KEY"
	opListKeys    = "LIST_ENVIRONMENT_KEYS"
	opUpdateKey   = "UPDATE_ENVIRONMENT_KEY"
	opDeleteKey   = "DELETE_ENVIRONMENT_KEY"
	opRotateKey   = "ROTATE_ENVIRONMENT_KEY"
	opGetMaterial = "GET_ENVIRONMENT_KEY_MATERIAL"
)

// EnvironmentKeyHandler は環境署名鍵のHTTPハンドラを提供する。
type EnvironmentKeyHandler struct {
	service *usecase.EnvironmentKeyService
}

// NewEnvironmentKeyHandler は新しいEnvironmentKeyHandlerを生成する。
func NewEnvironmentKeyHandler(service *usecase.EnvironmentKeyService) *EnvironmentKeyHandler {
	return &EnvironmentKeyHandler{service: service}
}

// CreateEnvironmentKeyRequest は鍵作成のリクエスト形式。active 省略時は true。
type CreateEnvironmentKeyRequest struct {
	EnvironmentID string `json:"environment_id"`
	Algorithm     string `json:"algorithm"`
	Active        *bool  `json:"active"`
}

// UpdateEnvironmentKeyRequest は鍵更新のリクエスト形式。
type UpdateEnvironmentKeyRequest struct {
	Active *bool `json:"active"`
}

// EnvironmentKeyResponse は鍵のレスポンス形式。鍵素材は含めない。
type EnvironmentKeyResponse struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	Algorithm     string `json:"algorithm"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// EnvironmentKeyListResponse は鍵一覧のレスポンス形式。
type EnvironmentKeyListResponse struct {
	Keys   []EnvironmentKeyResponse `json:"keys"`
	Offset int                      `json:"offset"`
	Limit  int                      `json:"limit"`
}

// RotateResponse はローテーション結果のレスポンス形式。
type RotateResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// DeleteResponse は削除結果のレスポンス形式。
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// MaterialResponse は復号済み鍵素材のレスポンス形式。
type MaterialResponse struct {
	EnvironmentID string `json:"environment_id"`
	Algorithm     string `json:"algorithm"`
	Key           string `json:"key"`
}

func toEnvironmentKeyResponse(k *domain.EnvironmentKey) EnvironmentKeyResponse {
	return EnvironmentKeyResponse{
		ID:            k.ID,
		EnvironmentID: k.EnvironmentID,
		Algorithm:     k.Algorithm.String(),
		Active:        k.Active,
		CreatedAt:     k.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     k.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// CreateEnvironmentKey は新しい鍵を生成する。
func (h *EnvironmentKeyHandler) CreateEnvironmentKey(w http.ResponseWriter, r *http.Request) {
	var req CreateEnvironmentKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	alg, err := domain.ParseAlgorithm(req.Algorithm)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ALGORITHM", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	key, err := h.service.Create(r.Context(), domain.EnvironmentKeyCreate{
		EnvironmentID: req.EnvironmentID,
		Algorithm:     alg,
		Active:        active,
	})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opCreateKey, "", req.EnvironmentID, middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opCreateKey, key.ID, key.EnvironmentID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, toEnvironmentKeyResponse(key))
}

// GetEnvironmentKey は鍵を取得する。
func (h *EnvironmentKeyHandler) GetEnvironmentKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	key, err := h.service.Read(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opGetKey, id, "", middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opGetKey, key.ID, key.EnvironmentID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toEnvironmentKeyResponse(key))
}

// ListEnvironmentKeys は鍵一覧を取得する。
// クエリ: environment_id, algorithm, active, offset, limit, sort=field:asc,field:desc
func (h *EnvironmentKeyHandler) ListEnvironmentKeys(w http.ResponseWriter, r *http.Request) {
	filter, sorts, page, err := parseListQuery(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	environmentID := ""
	if filter.EnvironmentID != nil {
		environmentID = *filter.EnvironmentID
	}
	keys, err := h.service.Find(r.Context(), filter, sorts, page)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opListKeys, "", environmentID, middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opListKeys, "", environmentID, middleware.AuditSuccess)
	response := EnvironmentKeyListResponse{
		Keys:   make([]EnvironmentKeyResponse, len(keys)),
		Offset: page.OffsetOrDefault(),
		Limit:  page.LimitOrDefault(),
	}
	for i, k := range keys {
		response.Keys[i] = toEnvironmentKeyResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// UpdateEnvironmentKey は active フラグを更新する。
func (h *EnvironmentKeyHandler) UpdateEnvironmentKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEnvironmentKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	key, err := h.service.Update(r.Context(), id, domain.EnvironmentKeyUpdate{Active: req.Active})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opUpdateKey, id, "", middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opUpdateKey, key.ID, key.EnvironmentID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toEnvironmentKeyResponse(key))
}

// DeleteEnvironmentKey は鍵を削除する。
func (h *EnvironmentKeyHandler) DeleteEnvironmentKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opDeleteKey, id, "", middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opDeleteKey, id, "", middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, DeleteResponse{ID: id, Deleted: deleted})
}

// RotateEnvironmentKey は鍵素材をローテーションする。
func (h *EnvironmentKeyHandler) RotateEnvironmentKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	key, err := h.service.Rotate(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opRotateKey, id, "", middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opRotateKey, key.ID, key.EnvironmentID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, RotateResponse{
		ID:      key.ID,
		Message: "Environment key rotated successfully",
	})
}

// GetEnvironmentKeyMaterial は有効な鍵を復号して返す。
func (h *EnvironmentKeyHandler) GetEnvironmentKeyMaterial(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "id")
	alg, err := domain.ParseAlgorithm(chi.URLParam(r, "algorithm"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ALGORITHM", err.Error())
		return
	}

	material, err := h.service.GetForUse(r.Context(), environmentID, alg)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), opGetMaterial, "", environmentID, middleware.AuditFailed)
		writeServiceError(w, r, keyErrorMappings, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), opGetMaterial, "", environmentID, middleware.AuditSuccess)
	w.Header().Set("Cache-Control", "no-store")
	httputil.JSON(w, http.StatusOK, MaterialResponse{
		EnvironmentID: environmentID,
		Algorithm:     alg.String(),
		Key:           material,
	})
}

func parseListQuery(r *http.Request) (domain.EnvironmentKeyFilter, []domain.Sort, domain.Pagination, error) {
	var (
		filter domain.EnvironmentKeyFilter
		page   domain.Pagination
	)
	q := r.URL.Query()

	if v := q.Get("environment_id"); v != "" {
		filter.EnvironmentID = &v
	}
	if v := q.Get("algorithm"); v != "" {
		alg, err := domain.ParseAlgorithm(v)
		if err != nil {
			return filter, nil, page, err
		}
		filter.Algorithm = &alg
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return filter, nil, page, fmt.Errorf("invalid active: %q", v)
		}
		filter.Active = &active
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, nil, page, fmt.Errorf("invalid offset: %q", v)
		}
		page.Offset = &offset
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, nil, page, fmt.Errorf("invalid limit: %q", v)
		}
		page.Limit = &limit
	}

	sorts, err := parseSort(q.Get("sort"))
	if err != nil {
		return filter, nil, page, err
	}
	return filter, sorts, page, nil
}

// parseSort は "created_at:desc,algorithm" 形式のソート指定を解析する。順序省略時は昇順。
func parseSort(s string) ([]domain.Sort, error) {
	if s == "" {
		return nil, nil
	}
	var sorts []domain.Sort
	for _, part := range strings.Split(s, ",") {
		field, order, _ := strings.Cut(strings.TrimSpace(part), ":")
		srt := domain.Sort{Field: domain.SortField(field), Order: domain.SortAsc}
		if !srt.Field.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSortField, field)
		}
		switch strings.ToLower(order) {
		case "", "asc":
		case "desc":
			srt.Order = domain.SortDesc
		default:
			return nil, fmt.Errorf("invalid sort order: %q", order)
		}
		sorts = append(sorts, srt)
	}
	return sorts, nil
}
