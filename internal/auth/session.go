package auth

// SessionData represents the authenticated session context for a request
type SessionData struct {
	UserID    string   `json:"uid"`
	Email     string   `json:"email"`
	Providers []string `json:"providers"`
}

// SessionFromClaims builds the request session from verified token claims
func SessionFromClaims(c *JWTClaims) *SessionData {
	return &SessionData{
		UserID:    c.UserID,
		Email:     c.Email,
		Providers: c.Providers,
	}
}
