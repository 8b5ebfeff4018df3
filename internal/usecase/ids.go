package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

func UUIDGenerator() IDGenerator { return uuidGenerator{} }

// ORD + yyyyMMddHHmmssSSS + "-" + 16進6桁
func newOrderNumber(now time.Time, ids IDGenerator) string {
	suffix := strings.ReplaceAll(ids.NewID(), "-", "")
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("ORD%s%03d-%s",
		now.Format("20060102150405"),
		now.Nanosecond()/int(time.Millisecond),
		strings.ToUpper(suffix),
	)
}

// page/limitの正規化
func normalizePage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return page, limit
}

type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}
