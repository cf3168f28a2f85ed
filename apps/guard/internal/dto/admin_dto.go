package dto

// BanUserRequest 手动封禁
type BanUserRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Reason    string `json:"reason" binding:"max=256"`
}

// AccountRequest 针对单个账号的操作
type AccountRequest struct {
	AccountID string `json:"accountId" binding:"required"`
}

// KickDeviceRequest 踢出指定设备
type KickDeviceRequest struct {
	AccountID   string `json:"accountId" binding:"required"`
	Fingerprint string `json:"fingerprint" binding:"required"`
}

// BatchAccountsRequest 批量操作，单次最多 1000 个账号
type BatchAccountsRequest struct {
	AccountIDs []string `json:"accountIds" binding:"required,min=1,max=1000"`
}
