package models

// StartRequest is the payload for POST /api/v1/verifications.
type StartRequest struct {
	// Code is the verification code printed on the certificate. Required.
	Code string `json:"code" binding:"required"`
}
