package types

// LoginRequest contains credentials for admin authentication
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is an account allowed to log in. Hash is a bcrypt hash.
type User struct {
	Username string
	Hash     []byte
	Role     string
}

// UserConfig is one entry of ADMIN_USERS. Password may be plain text or a
// bcrypt hash.
type UserConfig struct {
	Password string `json:"password"`
	Role     string `json:"role"`
}
