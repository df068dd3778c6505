package models

// User is a registered account. Password is stored and compared as plain
// text and never serialized.
type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
	Password string  `json:"-"`
}

// Profile is the subset of a User returned after a successful login.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Profile returns the login-facing view of u.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email}
}
