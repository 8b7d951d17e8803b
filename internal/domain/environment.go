package domain

import "time"

// Environment は署名鍵の所有者となる環境。鍵テーブルから外部キーで参照される。
type Environment struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
