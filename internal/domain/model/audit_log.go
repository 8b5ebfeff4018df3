package model

import "time"

type AuditAction string

const (
	AuditActionPlaceOrder        AuditAction = "PLACE_ORDER"
	AuditActionCancelOrder       AuditAction = "CANCEL_ORDER"
	AuditActionConfirmPayment    AuditAction = "CONFIRM_PAYMENT"
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionExpireOrder       AuditAction = "EXPIRE_ORDER"

	AuditActionCreateProduct     AuditAction = "CREATE_PRODUCT"
	AuditActionUpdateProduct     AuditAction = "UPDATE_PRODUCT"
	AuditActionDeleteProduct     AuditAction = "DELETE_PRODUCT"
	AuditActionDeactivateProduct AuditAction = "DEACTIVATE_PRODUCT"
	AuditActionUpdateStock       AuditAction = "UPDATE_STOCK"
	AuditActionUploadImage       AuditAction = "UPLOAD_PRODUCT_IMAGE"

	AuditActionCreateCategory AuditAction = "CREATE_CATEGORY"
	AuditActionUpdateCategory AuditAction = "UPDATE_CATEGORY"
	AuditActionDeleteCategory AuditAction = "DELETE_CATEGORY"

	AuditActionRegisterUser     AuditAction = "REGISTER_USER"
	AuditActionToggleUserActive AuditAction = "TOGGLE_USER_ACTIVE"
	AuditActionDeleteUser       AuditAction = "DELETE_USER"
	AuditActionForceLogout      AuditAction = "FORCE_LOGOUT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct  AuditResourceType = "product"
	AuditResourceCategory AuditResourceType = "category"
	AuditResourceOrder    AuditResourceType = "order"
	AuditResourceUser     AuditResourceType = "user"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。ActorUserID=0はシステム
type AuditLog struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorUserID  int64             `gorm:"not null;index" json:"actor_user_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id"`
	Description  string            `gorm:"type:varchar(500)" json:"description"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	IPAddress string    `gorm:"type:varchar(64)" json:"ip_address"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
