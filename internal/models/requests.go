package models

// RequestVerificationReq asks for a verification code for a phone number.
type RequestVerificationReq struct {
	PhoneNumber string `json:"phoneNumber"`
}

// VerifyCodeReq submits a verification code for a phone number.
type VerifyCodeReq struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

// RegisterReq creates an identity for a verified phone number.
type RegisterReq struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	Name        string `json:"name"`
}

// LoginReq authenticates with phone number and password.
type LoginReq struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// ValidateReq carries a session token for validation.
type ValidateReq struct {
	Token string `json:"token"`
}

// LogoutReq carries an optional body token; the header form is preferred.
type LogoutReq struct {
	Token string `json:"token,omitempty"`
}

// UpdateProfileReq updates mutable profile fields.
type UpdateProfileReq struct {
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}
