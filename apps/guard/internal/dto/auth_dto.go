package dto

// SignUpRequest 注册请求 DTO
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`    // 邮箱
	Password string `json:"password" binding:"required,min=6"` // 密码
	Name     string `json:"name" binding:"max=64"`             // 昵称
}

// SignInRequest 登录请求 DTO
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"` // 邮箱
	Password string `json:"password" binding:"required"`    // 密码
}
