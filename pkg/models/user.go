package models

// User is an account record. The stored form carries the bcrypt password
// hash and the pending verification token; both are omitempty so the
// Public view marshals without them.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Verified bool   `json:"verified"`
	// CreatedTS is a UTC unix-nano timestamp.
	CreatedTS int64 `json:"created_ts,omitempty"`

	PasswordHash string `json:"password_hash,omitempty"`
	VerifyToken  string `json:"verify_token,omitempty"`
}

// Public returns a copy safe for API responses: the password hash and any
// pending verification token are cleared so omitempty drops them.
func (u User) Public() User {
	u.PasswordHash = ""
	u.VerifyToken = ""
	return u
}
