package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"environment-key-service/internal/domain"
	"environment-key-service/internal/usecase"
)

// mockEnvironmentKeyRepository はテスト用のモックリポジトリ。
type mockEnvironmentKeyRepository struct {
	keys      map[string]*domain.EnvironmentKey
	createErr error
	findErr   error
	lastSorts []domain.Sort
	lastPage  domain.Pagination
}

func newMockEnvironmentKeyRepository() *mockEnvironmentKeyRepository {
	return &mockEnvironmentKeyRepository{keys: make(map[string]*domain.EnvironmentKey)}
}

func (m *mockEnvironmentKeyRepository) Create(ctx context.Context, key *domain.EnvironmentKey) error {
	if m.createErr != nil {
		return m.createErr
	}
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now()
	key.UpdatedAt = key.CreatedAt
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *mockEnvironmentKeyRepository) FindByID(ctx context.Context, id string) (*domain.EnvironmentKey, error) {
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrEnvironmentKeyNotFound
	}
	return k, nil
}

func (m *mockEnvironmentKeyRepository) FindActive(ctx context.Context, environmentID string, alg domain.Algorithm) (*domain.EnvironmentKey, error) {
	for _, k := range m.keys {
		if k.EnvironmentID == environmentID && k.Algorithm == alg && k.Active {
			return k, nil
		}
	}
	return nil, domain.ErrEnvironmentKeyNotFound
}

func (m *mockEnvironmentKeyRepository) Find(ctx context.Context, filter domain.EnvironmentKeyFilter, sorts []domain.Sort, page domain.Pagination) ([]*domain.EnvironmentKey, error) {
	m.lastSorts = sorts
	m.lastPage = page
	if m.findErr != nil {
		return nil, m.findErr
	}
	var result []*domain.EnvironmentKey
	for _, k := range m.keys {
		result = append(result, k)
	}
	return result, nil
}

func (m *mockEnvironmentKeyRepository) UpdateActive(ctx context.Context, id string, active bool) (*domain.EnvironmentKey, error) {
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrEnvironmentKeyNotFound
	}
	k.Active = active
	return k, nil
}

func (m *mockEnvironmentKeyRepository) RotateMaterial(ctx context.Context, id string, newMaterial domain.KeyMaterialFunc) (*domain.EnvironmentKey, error) {
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrEnvironmentKeyNotFound
	}
	encrypted, err := newMaterial(ctx, k)
	if err != nil {
		return nil, err
	}
	k.EncryptedKey = encrypted
	k.UpdatedAt = k.UpdatedAt.Add(time.Second)
	return k, nil
}

func (m *mockEnvironmentKeyRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.keys[id]; !ok {
		return domain.ErrEnvironmentKeyNotFound
	}
	delete(m.keys, id)
	return nil
}

// mockKeyBuilder はテスト用の固定素材を返す。
type mockKeyBuilder struct{}

func (mockKeyBuilder) Generate(alg domain.Algorithm) (string, error) {
	return "material-" + alg.String(), nil
}

// mockSecretsManager はリソースIDを前置するだけの暗号化を行う。
type mockSecretsManager struct{}

func (mockSecretsManager) Encrypt(ctx context.Context, plaintext string, resourceID string) (string, error) {
	return resourceID + "|" + plaintext, nil
}

func (mockSecretsManager) Decrypt(ctx context.Context, ciphertext string, resourceID string) (string, error) {
	plaintext, ok := strings.CutPrefix(ciphertext, resourceID+"|")
	if !ok {
		return "", domain.ErrDecryption
	}
	return plaintext, nil
}

func setupRouter(repo *mockEnvironmentKeyRepository) http.Handler {
	keys := NewEnvironmentKeyHandler(usecase.NewEnvironmentKeyService(repo, mockKeyBuilder{}, mockSecretsManager{}))
	envs := NewEnvironmentHandler(usecase.NewEnvironmentService(newMockEnvironmentRepository()))
	return NewRouter(keys, envs)
}

func seedKey(repo *mockEnvironmentKeyRepository, envID string, alg domain.Algorithm, active bool) *domain.EnvironmentKey {
	k := &domain.EnvironmentKey{
		EnvironmentID: envID,
		Algorithm:     alg,
		EncryptedKey:  envID + "|material-" + alg.String(),
		Active:        active,
	}
	_ = repo.Create(context.Background(), k)
	return k
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestCreateEnvironmentKey_Success(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	h := setupRouter(repo)
	envID := uuid.New().String()

	rec := doRequest(t, h, http.MethodPost, "/v1/environment-keys", `{"environment_id":"`+envID+`","algorithm":"HS384"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody(t, rec)
	if resp["environment_id"] != envID || resp["algorithm"] != "HS384" || resp["active"] != true {
		t.Errorf("unexpected response: %v", resp)
	}
	if _, ok := resp["key"]; ok {
		t.Error("want key material to be omitted from response")
	}
}

func TestCreateEnvironmentKey_InvalidAlgorithm(t *testing.T) {
	h := setupRouter(newMockEnvironmentKeyRepository())

	rec := doRequest(t, h, http.MethodPost, "/v1/environment-keys", `{"environment_id":"`+uuid.New().String()+`","algorithm":"none"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestCreateEnvironmentKey_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		createErr  error
		wantStatus int
		wantMsg    string
	}{
		{"duplicate", domain.ErrDuplicateCombination, http.StatusConflict, "Environment Id and Algorithm combination already exists"},
		{"foreign key", domain.ErrForeignKeyConstraint, http.StatusUnprocessableEntity, "Foreign key constraint failed"},
		{"other constraint", domain.ErrNoChangesWereMade, http.StatusBadRequest, "No changes were made"},
		{"unexpected", errors.New("connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockEnvironmentKeyRepository()
			repo.createErr = tt.createErr
			h := setupRouter(repo)

			rec := doRequest(t, h, http.MethodPost, "/v1/environment-keys", `{"environment_id":"`+uuid.New().String()+`","algorithm":"RS256","active":true}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("want status %d, got %d", tt.wantStatus, rec.Code)
			}
			if resp := decodeBody(t, rec); resp["message"] != tt.wantMsg {
				t.Errorf("want message %q, got %v", tt.wantMsg, resp["message"])
			}
		})
	}
}

func TestGetEnvironmentKey(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	key := seedKey(repo, uuid.New().String(), domain.AlgorithmES256, true)
	h := NewEnvironmentKeyHandler(usecase.NewEnvironmentKeyService(repo, mockKeyBuilder{}, mockSecretsManager{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/environment-keys/"+key.ID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", key.ID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.GetEnvironmentKey(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["id"] != key.ID {
		t.Errorf("want id %s, got %v", key.ID, resp["id"])
	}
}

func TestGetEnvironmentKey_NotFound(t *testing.T) {
	h := setupRouter(newMockEnvironmentKeyRepository())

	rec := doRequest(t, h, http.MethodGet, "/v1/environment-keys/"+uuid.New().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["message"] != "Environment key not found" {
		t.Errorf("want verbatim message, got %v", resp["message"])
	}
}

func TestListEnvironmentKeys(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	seedKey(repo, uuid.New().String(), domain.AlgorithmHS256, true)
	seedKey(repo, uuid.New().String(), domain.AlgorithmHS512, false)
	h := setupRouter(repo)

	rec := doRequest(t, h, http.MethodGet, "/v1/environment-keys?sort=created_at:desc,algorithm&offset=5&limit=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if keys, _ := resp["keys"].([]any); len(keys) != 2 {
		t.Errorf("want 2 keys, got %v", resp["keys"])
	}
	if resp["offset"] != float64(5) || resp["limit"] != float64(20) {
		t.Errorf("unexpected paging: %v", resp)
	}

	want := []domain.Sort{
		{Field: domain.SortFieldCreatedAt, Order: domain.SortDesc},
		{Field: domain.SortFieldAlgorithm, Order: domain.SortAsc},
	}
	if len(repo.lastSorts) != len(want) {
		t.Fatalf("want %d sort keys, got %v", len(want), repo.lastSorts)
	}
	for i := range want {
		if repo.lastSorts[i] != want[i] {
			t.Errorf("sort %d: want %v, got %v", i, want[i], repo.lastSorts[i])
		}
	}
}

func TestListEnvironmentKeys_DefaultPaging(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	h := setupRouter(repo)

	rec := doRequest(t, h, http.MethodGet, "/v1/environment-keys", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["offset"] != float64(0) || resp["limit"] != float64(domain.DefaultPageLimit) {
		t.Errorf("unexpected default paging: %v", resp)
	}
}

func TestListEnvironmentKeys_InvalidQuery(t *testing.T) {
	h := setupRouter(newMockEnvironmentKeyRepository())

	for _, q := range []string{"sort=key:asc", "sort=algorithm:sideways", "limit=-1", "offset=x", "active=maybe", "algorithm=none"} {
		rec := doRequest(t, h, http.MethodGet, "/v1/environment-keys?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want status 400, got %d", q, rec.Code)
		}
	}
}

func TestUpdateEnvironmentKey(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	key := seedKey(repo, uuid.New().String(), domain.AlgorithmPS256, true)
	h := setupRouter(repo)

	rec := doRequest(t, h, http.MethodPatch, "/v1/environment-keys/"+key.ID, `{"active":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["active"] != false {
		t.Errorf("want active=false, got %v", resp["active"])
	}

	rec = doRequest(t, h, http.MethodPatch, "/v1/environment-keys/"+key.ID, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400 for empty update, got %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["message"] != "No changes to update" {
		t.Errorf("want verbatim message, got %v", resp["message"])
	}

	// 鍵素材など他のフィールドは更新できない
	rec = doRequest(t, h, http.MethodPatch, "/v1/environment-keys/"+key.ID, `{"algorithm":"HS256"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400 for unknown field, got %d", rec.Code)
	}
}

func TestDeleteEnvironmentKey(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	key := seedKey(repo, uuid.New().String(), domain.AlgorithmHS256, true)
	h := setupRouter(repo)

	rec := doRequest(t, h, http.MethodDelete, "/v1/environment-keys/"+key.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["deleted"] != true {
		t.Errorf("want deleted=true, got %v", resp["deleted"])
	}

	rec = doRequest(t, h, http.MethodDelete, "/v1/environment-keys/"+key.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestRotateEnvironmentKey(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	key := seedKey(repo, uuid.New().String(), domain.AlgorithmES384, false)
	h := setupRouter(repo)

	rec := doRequest(t, h, http.MethodPost, "/v1/environment-keys/"+key.ID+"/rotate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["id"] != key.ID || resp["message"] != "Environment key rotated successfully" {
		t.Errorf("unexpected response: %v", resp)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/environment-keys/"+uuid.New().String()+"/rotate", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestGetEnvironmentKeyMaterial(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	envID := uuid.New().String()
	seedKey(repo, envID, domain.AlgorithmHS256, true)
	h := setupRouter(repo)

	rec := doRequest(t, h, http.MethodGet, "/v1/environments/"+envID+"/keys/HS256/material", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("want Cache-Control no-store, got %q", got)
	}
	if resp := decodeBody(t, rec); resp["key"] != "material-HS256" {
		t.Errorf("want decrypted material, got %v", resp["key"])
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/environments/"+envID+"/keys/HS512/material", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	repo := newMockEnvironmentKeyRepository()
	keys := NewEnvironmentKeyHandler(usecase.NewEnvironmentKeyService(repo, mockKeyBuilder{}, mockSecretsManager{}))
	envs := NewEnvironmentHandler(usecase.NewEnvironmentService(newMockEnvironmentRepository()))

	healthy := true
	h := NewRouter(keys, envs,
		WithMetrics(prometheus.NewRegistry()),
		WithHealthCheck(func(context.Context) error {
			if !healthy {
				return errors.New("db down")
			}
			return nil
		}),
	)

	if rec := doRequest(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}
	healthy = false
	if rec := doRequest(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("want status 503, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("want status 200 for /metrics, got %d", rec.Code)
	}
}
