package sqlite

import "time"

type SourceModel struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"uniqueIndex;not null"`
	Kind           string `gorm:"not null;index"`
	Description    string
	Active         bool   `gorm:"not null;default:true"`
	ConnectionJSON string `gorm:"not null;default:'{}'"`
	SecurityJSON   string `gorm:"not null;default:'{}'"`
	UIJSON         string `gorm:"not null;default:'{}'"`
	AllowWriteBack bool   `gorm:"not null;default:false"`
	CreatedByID    *uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (SourceModel) TableName() string { return "sources" }

type PermissionGrantModel struct {
	ID               uint   `gorm:"primaryKey"`
	SourceID         uint   `gorm:"not null;index:idx_source_user_perm,unique"`
	UserID           uint   `gorm:"not null;index:idx_source_user_perm,unique"`
	Permission       string `gorm:"not null;index:idx_source_user_perm,unique"`
	RowFilter        string
	ColumnFilter     string
	RequiresApproval bool `gorm:"not null;default:false"`
	CreatedAt        time.Time
}

func (PermissionGrantModel) TableName() string { return "permission_grants" }

type WriteBackRequestModel struct {
	ID              uint   `gorm:"primaryKey"`
	SourceID        uint   `gorm:"not null;index"`
	RequestedByID   uint   `gorm:"not null;index"`
	Operation       string `gorm:"not null"`
	TableName_      string `gorm:"column:table_name;not null"`
	PrimaryKey      string
	OldValuesJSON   string `gorm:"not null;default:'{}'"`
	NewValuesJSON   string `gorm:"not null;default:'{}'"`
	Status          string `gorm:"not null;default:'pending';index"`
	ApprovedByID    *uint
	ApprovedAt      *time.Time
	RejectionReason string
	ExecutedAt      *time.Time
	ExecutionResult string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (WriteBackRequestModel) TableName() string { return "write_back_requests" }

type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Superuser    bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type APITokenModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (APITokenModel) TableName() string { return "api_tokens" }

type AuditLogModel struct {
	ID          uint `gorm:"primaryKey"`
	ActorUserID *uint
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
