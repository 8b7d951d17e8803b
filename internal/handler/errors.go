package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"environment-key-service/internal/domain"
	"environment-key-service/pkg/httputil"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// 上から順に判定する。ErrForeignKeyConstraint は ErrEnvironmentNotFound より先に置くこと。
var keyErrorMappings = []errorMapping{
	{domain.ErrEnvironmentKeyNotFound, http.StatusNotFound, "ENVIRONMENT_KEY_NOT_FOUND"},
	{domain.ErrDuplicateCombination, http.StatusConflict, "DUPLICATE_COMBINATION"},
	{domain.ErrForeignKeyConstraint, http.StatusUnprocessableEntity, "ENVIRONMENT_NOT_FOUND"},
	{domain.ErrEnvironmentNotFound, http.StatusUnprocessableEntity, "ENVIRONMENT_NOT_FOUND"},
	{domain.ErrNoChangesToUpdate, http.StatusBadRequest, "NO_CHANGES_TO_UPDATE"},
	{domain.ErrNoChangesWereMade, http.StatusBadRequest, "NO_CHANGES_WERE_MADE"},
	{domain.ErrInvalidEnvironmentID, http.StatusBadRequest, "INVALID_ENVIRONMENT_ID"},
	{domain.ErrInvalidAlgorithm, http.StatusBadRequest, "INVALID_ALGORITHM"},
	{domain.ErrInvalidSortField, http.StatusBadRequest, "INVALID_SORT_FIELD"},
}

var environmentErrorMappings = []errorMapping{
	{domain.ErrEnvironmentNotFound, http.StatusNotFound, "ENVIRONMENT_NOT_FOUND"},
	{domain.ErrEnvironmentNameTaken, http.StatusConflict, "ENVIRONMENT_NAME_TAKEN"},
	{domain.ErrInvalidEnvironment, http.StatusBadRequest, "INVALID_ENVIRONMENT"},
	{domain.ErrNoChangesWereMade, http.StatusBadRequest, "NO_CHANGES_WERE_MADE"},
}

// writeServiceError はユースケースのエラーをHTTPレスポンスに変換する。
// メッセージには対応するエラーの文言だけを使い、内部の詳細は返さない。
func writeServiceError(w http.ResponseWriter, r *http.Request, mappings []errorMapping, err error) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			httputil.Error(w, m.status, m.code, m.target.Error())
			return
		}
	}
	slog.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
