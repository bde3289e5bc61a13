package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CredentialsRequest is the body for register and login.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1"`
}

// Validate checks required fields and returns per-field messages.
func (r *CredentialsRequest) Validate() map[string]string {
	return validateStruct(r)
}

// ChatRequest is the body for a chat turn. ChatID is optional; when empty the
// server creates a new conversation.
type ChatRequest struct {
	Message string `json:"message" validate:"required"`
	ChatID  string `json:"chat_id,omitempty"`
}

// Validate checks required fields and returns per-field messages.
func (r *ChatRequest) Validate() map[string]string {
	return validateStruct(r)
}

func validateStruct(v any) map[string]string {
	if err := validate.Struct(v); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		fields := make(map[string]string)
		for _, e := range errs {
			fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return fields
	}
	return nil
}
