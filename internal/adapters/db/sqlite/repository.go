package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// GatewayRepository implements the record-store ports against sqlite.
type GatewayRepository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewGatewayRepository(db *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

// DB exposes the underlying handle for the internal-db query adapter, which
// runs gated read-only SELECTs against the same database.
func (r *GatewayRepository) DB() *gorm.DB { return r.db }

func sourceToDomain(m SourceModel) domain.Source {
	var conn domain.ConnectionConfig
	var sec domain.SecurityPolicy
	var ui domain.UIDescriptor
	_ = json.Unmarshal([]byte(m.ConnectionJSON), &conn)
	_ = json.Unmarshal([]byte(m.SecurityJSON), &sec)
	_ = json.Unmarshal([]byte(m.UIJSON), &ui)

	return domain.Source{
		ID:             m.ID,
		Name:           m.Name,
		Kind:           domain.KindFromString(m.Kind),
		Description:    m.Description,
		Active:         m.Active,
		Connection:     conn,
		Security:       sec,
		UI:             ui,
		AllowWriteBack: m.AllowWriteBack,
		CreatedByID:    m.CreatedByID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (r *GatewayRepository) ListActive(ctx context.Context) ([]domain.Source, error) {
	rows := make([]SourceModel, 0)
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.Source, 0, len(rows))
	for _, m := range rows {
		result = append(result, sourceToDomain(m))
	}
	return result, nil
}

func (r *GatewayRepository) GetSource(ctx context.Context, id uint) (domain.Source, error) {
	var m SourceModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Source{}, domain.ErrNotFound("source_not_found", "source %d not found", id)
		}
		return domain.Source{}, err
	}
	return sourceToDomain(m), nil
}

func (r *GatewayRepository) CreateSource(ctx context.Context, value domain.Source) (domain.Source, error) {
	m := SourceModel{
		Name:           value.Key(),
		Kind:           string(value.Kind),
		Description:    value.Description,
		Active:         value.Active,
		ConnectionJSON: mustJSON(value.Connection),
		SecurityJSON:   mustJSON(value.Security),
		UIJSON:         mustJSON(value.UI),
		AllowWriteBack: value.AllowWriteBack,
		CreatedByID:    value.CreatedByID,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.Source{}, domain.ErrConflict("source_exists", "source %q already exists", value.Key())
		}
		return domain.Source{}, err
	}
	return sourceToDomain(m), nil
}

func (r *GatewayRepository) UpdateSource(ctx context.Context, id uint, update domain.SourceUpdate) (domain.Source, error) {
	var m SourceModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Source{}, domain.ErrNotFound("source_not_found", "source %d not found", id)
		}
		return domain.Source{}, err
	}

	if update.Connection != nil {
		m.ConnectionJSON = mustJSON(*update.Connection)
	}
	if update.Security != nil {
		m.SecurityJSON = mustJSON(*update.Security)
	}
	if update.UI != nil {
		m.UIJSON = mustJSON(*update.UI)
	}
	if update.Description != nil {
		m.Description = *update.Description
	}
	if update.AllowWriteBack != nil {
		m.AllowWriteBack = *update.AllowWriteBack
	}
	if update.Active != nil {
		m.Active = *update.Active
	}

	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return domain.Source{}, err
	}
	return sourceToDomain(m), nil
}

func (r *GatewayRepository) GrantsForUser(ctx context.Context, userID uint) ([]domain.PermissionGrant, error) {
	rows := make([]PermissionGrantModel, 0)
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.PermissionGrant, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.PermissionGrant{
			ID:               m.ID,
			SourceID:         m.SourceID,
			UserID:           m.UserID,
			Permission:       m.Permission,
			RowFilter:        m.RowFilter,
			ColumnFilter:     m.ColumnFilter,
			RequiresApproval: m.RequiresApproval,
			CreatedAt:        m.CreatedAt,
		})
	}
	return result, nil
}

func (r *GatewayRepository) Grant(ctx context.Context, grant domain.PermissionGrant) error {
	m := PermissionGrantModel{
		SourceID:         grant.SourceID,
		UserID:           grant.UserID,
		Permission:       grant.Permission,
		RowFilter:        grant.RowFilter,
		ColumnFilter:     grant.ColumnFilter,
		RequiresApproval: grant.RequiresApproval,
	}
	err := r.db.WithContext(ctx).Create(&m).Error
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		// Idempotent re-grant.
		return nil
	}
	return err
}

func writeBackToDomain(m WriteBackRequestModel, sourceName, requestedBy, approvedBy string) domain.WriteBackRequest {
	var oldValues, newValues map[string]any
	_ = json.Unmarshal([]byte(m.OldValuesJSON), &oldValues)
	_ = json.Unmarshal([]byte(m.NewValuesJSON), &newValues)

	return domain.WriteBackRequest{
		ID:              m.ID,
		SourceID:        m.SourceID,
		SourceName:      sourceName,
		RequestedByID:   m.RequestedByID,
		RequestedBy:     requestedBy,
		Operation:       m.Operation,
		TableName:       m.TableName_,
		PrimaryKey:      m.PrimaryKey,
		OldValues:       oldValues,
		NewValues:       newValues,
		Status:          m.Status,
		ApprovedByID:    m.ApprovedByID,
		ApprovedBy:      approvedBy,
		ApprovedAt:      m.ApprovedAt,
		RejectionReason: m.RejectionReason,
		ExecutedAt:      m.ExecutedAt,
		ExecutionResult: m.ExecutionResult,
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (r *GatewayRepository) hydrateWriteBack(ctx context.Context, m WriteBackRequestModel) domain.WriteBackRequest {
	var sourceName, requestedBy, approvedBy string

	var src SourceModel
	if err := r.db.WithContext(ctx).First(&src, m.SourceID).Error; err == nil {
		sourceName = src.Name
	}
	var requester UserModel
	if err := r.db.WithContext(ctx).First(&requester, m.RequestedByID).Error; err == nil {
		requestedBy = requester.Username
	}
	if m.ApprovedByID != nil {
		var approver UserModel
		if err := r.db.WithContext(ctx).First(&approver, *m.ApprovedByID).Error; err == nil {
			approvedBy = approver.Username
		}
	}

	return writeBackToDomain(m, sourceName, requestedBy, approvedBy)
}

func (r *GatewayRepository) CreateWriteBack(ctx context.Context, value domain.WriteBackRequest) (domain.WriteBackRequest, error) {
	m := WriteBackRequestModel{
		SourceID:      value.SourceID,
		RequestedByID: value.RequestedByID,
		Operation:     value.Operation,
		TableName_:    value.TableName,
		PrimaryKey:    value.PrimaryKey,
		OldValuesJSON: mustJSON(value.OldValues),
		NewValuesJSON: mustJSON(value.NewValues),
		Status:        domain.WriteBackPending,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.WriteBackRequest{}, err
	}
	return r.hydrateWriteBack(ctx, m), nil
}

func (r *GatewayRepository) GetWriteBack(ctx context.Context, id uint) (domain.WriteBackRequest, error) {
	var m WriteBackRequestModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WriteBackRequest{}, domain.ErrNotFound("write_back_not_found", "write-back request %d not found", id)
		}
		return domain.WriteBackRequest{}, err
	}
	return r.hydrateWriteBack(ctx, m), nil
}

func (r *GatewayRepository) ListWriteBacks(ctx context.Context, filter domain.WriteBackFilter, limit int) ([]domain.WriteBackRequest, error) {
	q := r.db.WithContext(ctx).Model(&WriteBackRequestModel{})
	if filter.RequesterID != nil {
		q = q.Where("requested_by_id = ?", *filter.RequesterID)
	}
	if len(filter.SourceIDs) > 0 {
		q = q.Where("source_id IN ?", filter.SourceIDs)
	}

	rows := make([]WriteBackRequestModel, 0)
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.WriteBackRequest, 0, len(rows))
	for _, m := range rows {
		result = append(result, r.hydrateWriteBack(ctx, m))
	}
	return result, nil
}

func (r *GatewayRepository) UpdateWriteBackStatus(ctx context.Context, value domain.WriteBackRequest) (domain.WriteBackRequest, error) {
	var m WriteBackRequestModel
	if err := r.db.WithContext(ctx).First(&m, value.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WriteBackRequest{}, domain.ErrNotFound("write_back_not_found", "write-back request %d not found", value.ID)
		}
		return domain.WriteBackRequest{}, err
	}

	m.Status = value.Status
	m.ApprovedByID = value.ApprovedByID
	m.ApprovedAt = value.ApprovedAt
	m.RejectionReason = value.RejectionReason
	m.ExecutedAt = value.ExecutedAt
	m.ExecutionResult = value.ExecutionResult
	m.ErrorMessage = value.ErrorMessage

	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return domain.WriteBackRequest{}, err
	}
	return r.hydrateWriteBack(ctx, m), nil
}

func (r *GatewayRepository) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	m := UserModel{Username: value.Username, PasswordHash: value.PasswordHash, Superuser: value.Superuser}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.User{}, domain.ErrConflict("user_exists", "username %q already taken", value.Username)
		}
		return domain.User{}, err
	}

	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Superuser:    m.Superuser,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func (r *GatewayRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GatewayRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound("user_not_found", "user %q not found", username)
		}
		return domain.User{}, err
	}

	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Superuser:    m.Superuser,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func (r *GatewayRepository) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound("user_not_found", "user %d not found", id)
		}
		return domain.User{}, err
	}

	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Superuser:    m.Superuser,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func (r *GatewayRepository) CreateAPIToken(ctx context.Context, value domain.APIToken) (domain.APIToken, error) {
	m := APITokenModel{
		UserID:    value.UserID,
		Name:      value.Name,
		TokenHash: value.TokenHash,
		ExpiresAt: value.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.APIToken{}, err
	}

	return domain.APIToken{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		TokenHash: m.TokenHash,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}, nil
}

func (r *GatewayRepository) GetAPITokenByHash(ctx context.Context, tokenHash string) (domain.APIToken, error) {
	var m APITokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIToken{}, domain.ErrUnauthenticated("invalid_token", "token not recognized")
		}
		return domain.APIToken{}, err
	}
	if m.ExpiresAt != nil && m.ExpiresAt.Before(time.Now()) {
		return domain.APIToken{}, domain.ErrUnauthenticated("token_expired", "token expired")
	}

	return domain.APIToken{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		TokenHash: m.TokenHash,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}, nil
}

func (r *GatewayRepository) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	m := AuditLogModel{
		ActorUserID: value.ActorUserID,
		Action:      value.Action,
		TargetType:  value.TargetType,
		TargetID:    value.TargetID,
		Metadata:    value.Metadata,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GatewayRepository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	type row struct {
		ID            uint
		ActorUserID   *uint
		ActorUsername string
		Action        string
		TargetType    string
		TargetID      *uint
		Metadata      string
		CreatedAt     time.Time
	}

	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(`
SELECT a.id,
       a.actor_user_id,
       COALESCE(u.username, '') AS actor_username,
       a.action,
       a.target_type,
       a.target_id,
       a.metadata,
       a.created_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_user_id
ORDER BY a.id DESC
LIMIT ?`, limit).Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.AuditRecord, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.AuditRecord{
			ID:            m.ID,
			ActorUserID:   m.ActorUserID,
			ActorUsername: m.ActorUsername,
			Action:        m.Action,
			TargetType:    m.TargetType,
			TargetID:      m.TargetID,
			Metadata:      m.Metadata,
			CreatedAt:     m.CreatedAt,
		})
	}
	return result, nil
}
