package model

import "time"

// Account 账号表（认证提供方使用）
type Account struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID    string    `gorm:"column:account_id;type:char(36);not null;uniqueIndex:uidx_account_id;comment:账号uuid"`
	Email        string    `gorm:"column:email;type:varchar(128);not null;uniqueIndex:uidx_email;comment:登录邮箱"`
	Name         string    `gorm:"column:name;type:varchar(64);not null;default:'';comment:昵称"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(128);not null;comment:bcrypt 密码哈希"`
	Role         string    `gorm:"column:role;type:varchar(16);not null;default:'student';comment:角色(admin/student)"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string {
	return "account"
}
