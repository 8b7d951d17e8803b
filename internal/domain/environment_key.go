package domain

import (
	"context"
	"time"
)

// DefaultPageLimit は一覧取得でlimit未指定時の件数。
const DefaultPageLimit = 10

// EnvironmentKey は (環境, アルゴリズム) ごとの署名鍵スロットを表す。
// EncryptedKey は暗号文であり、平文の鍵素材は保持しない。
type EnvironmentKey struct {
	ID            string
	EnvironmentID string
	Algorithm     Algorithm
	EncryptedKey  string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// KeyMaterialFunc は現在の鍵から新しい暗号化済み鍵素材を作る。ローテーション中に呼ばれる。
type KeyMaterialFunc func(ctx context.Context, current *EnvironmentKey) (string, error)

// EnvironmentKeyCreate は鍵作成の入力。
type EnvironmentKeyCreate struct {
	EnvironmentID string
	Algorithm     Algorithm
	Active        bool
}

// EnvironmentKeyUpdate は鍵の部分更新。変更可能なのは Active のみ。
type EnvironmentKeyUpdate struct {
	Active *bool
}

// IsEmpty は更新対象のフィールドが1つも指定されていないかを返す。
func (u EnvironmentKeyUpdate) IsEmpty() bool {
	return u.Active == nil
}

// EnvironmentKeyFilter は一覧取得の絞り込み条件。nil のフィールドは条件に含めない。
type EnvironmentKeyFilter struct {
	EnvironmentID *string
	Algorithm     *Algorithm
	Active        *bool
}

// SortField はソート可能なカラム。
type SortField string

const (
	SortFieldID            SortField = "id"
	SortFieldEnvironmentID SortField = "environment_id"
	SortFieldAlgorithm     SortField = "algorithm"
	SortFieldActive        SortField = "active"
	SortFieldCreatedAt     SortField = "created_at"
	SortFieldUpdatedAt     SortField = "updated_at"
)

// Valid はソート可能なフィールドかどうかを返す。
func (f SortField) Valid() bool {
	switch f {
	case SortFieldID, SortFieldEnvironmentID, SortFieldAlgorithm,
		SortFieldActive, SortFieldCreatedAt, SortFieldUpdatedAt:
		return true
	}
	return false
}

// SortOrder は昇順・降順を表す。
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Sort は (フィールド, 順序) の組。複数指定時は指定順に適用する。
type Sort struct {
	Field SortField
	Order SortOrder
}

// Pagination はオフセット方式のページング指定。
type Pagination struct {
	Offset *int
	Limit  *int
}

// LimitOrDefault はlimitを返す。未指定・不正値の場合は DefaultPageLimit。
func (p Pagination) LimitOrDefault() int {
	if p.Limit == nil || *p.Limit <= 0 {
		return DefaultPageLimit
	}
	return *p.Limit
}

// OffsetOrDefault はoffsetを返す。未指定・負値の場合は0。
func (p Pagination) OffsetOrDefault() int {
	if p.Offset == nil || *p.Offset < 0 {
		return 0
	}
	return *p.Offset
}
