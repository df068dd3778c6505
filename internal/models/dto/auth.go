package dto

import "github.com/hongminglow/moviebox-be/internal/models"

// RegisterRequest is the body of POST /api/users.
type RegisterRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
}

// LoginRequest is the body of POST /api/login. Identifier is accepted in
// place of Username and may hold a username or an email.
type LoginRequest struct {
	Username   string `json:"username"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Message string         `json:"message"`
	User    models.Profile `json:"user"`
}
