package models

type LoginRequest struct {
	Token string `json:"token" binding:"required"`
}

type LoginResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
