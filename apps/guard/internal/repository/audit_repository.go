package repository

import (
	"context"

	"EduServer/model"

	"gorm.io/gorm"
)

type auditRepositoryImpl struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计仓储，只追加
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepositoryImpl{db: db}
}

func (r *auditRepositoryImpl) Create(ctx context.Context, log *model.AuditLog) error {
	return WrapDBError(r.db.WithContext(ctx).Create(log).Error)
}
