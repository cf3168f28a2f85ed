package repository

import (
	"context"

	"EduServer/model"

	"gorm.io/gorm"
)

type accountRepositoryImpl struct {
	db *gorm.DB
}

// NewAccountRepository 创建账号仓储
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepositoryImpl{db: db}
}

func (r *accountRepositoryImpl) Create(ctx context.Context, account *model.Account) error {
	return WrapDBError(r.db.WithContext(ctx).Create(account).Error)
}

func (r *accountRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &account, nil
}

func (r *accountRepositoryImpl) GetByAccountID(ctx context.Context, accountID string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &account, nil
}
