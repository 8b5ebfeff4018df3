package usecase

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// 本番用の時計（UTC）
func SystemClock() Clock { return systemClock{} }

// 監査ログを残す。失敗してもWarnを出すだけで本処理は止めない
type auditRecorder struct {
	logs  repository.AuditLogRepository
	log   *zap.Logger
	clock Clock
}

func newAuditRecorder(logs repository.AuditLogRepository, log *zap.Logger, clock Clock) auditRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return auditRecorder{logs: logs, log: log, clock: clock}
}

type auditEntry struct {
	actor        Actor
	action       model.AuditAction
	resourceType model.AuditResourceType
	resourceID   int64
	description  string
	before       any
	after        any
}

func (r auditRecorder) record(ctx context.Context, e auditEntry) {
	if r.logs == nil {
		return
	}
	entry := model.AuditLog{
		ActorUserID:  e.actor.UserID,
		Action:       e.action,
		ResourceType: e.resourceType,
		ResourceID:   e.resourceID,
		Description:  e.description,
		BeforeJSON:   toJSON(e.before),
		AfterJSON:    toJSON(e.after),
		IPAddress:    e.actor.IP,
		CreatedAt:    r.clock.Now(),
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		r.log.Warn("audit log write failed",
			zap.String("action", string(e.action)),
			zap.Int64("resource_id", e.resourceID),
			zap.Error(err),
		)
	}
}

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
