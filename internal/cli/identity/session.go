package identity

import "strings"

// Storage keys of the identity triple
const (
	KeyToken     = "id_token"
	KeyDemoID    = "demo_uid"
	KeyDemoEmail = "demo_email"
)

// Session is the identity triple the gateway attaches to outbound calls.
// The zero value means signed out.
type Session struct {
	Token     string
	DemoID    string
	DemoEmail string
}

// SignedIn reports whether the session carries a user identity.
func (s Session) SignedIn() bool {
	return s.DemoID != "" && s.DemoEmail != ""
}

// HasToken reports whether a bearer credential is present.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// coherent reports whether s could have been written by a single commit:
// both demo values are the same identity and a token never appears alone.
func (s Session) coherent() bool {
	if s.DemoID != s.DemoEmail {
		return false
	}
	if s.Token != "" && s.DemoID == "" {
		return false
	}
	return true
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DemoIdentity derives the demo header value for user: the normalized email,
// or "<uid>@example.com" when the backend knows no email.
func DemoIdentity(user *User) string {
	if e := NormalizeEmail(user.Email); e != "" {
		return e
	}
	return user.UID + "@example.com"
}

func sessionFor(user *User, token string) Session {
	demo := DemoIdentity(user)
	return Session{
		Token:     token,
		DemoID:    demo,
		DemoEmail: demo,
	}
}
