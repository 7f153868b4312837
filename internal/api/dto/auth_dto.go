package dto

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SwitchTabRequest struct {
	Tab string `json:"tab" binding:"required"`
}

// ErrorResponse carries a stable machine code plus the user-facing message
// for it.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
