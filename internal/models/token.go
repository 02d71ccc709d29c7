package models

// Session is the authenticated state of the client: the signed-in user and
// the access/refresh credential pair issued for them.
type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserID returns the id of the signed-in user.
func (s *Session) UserID() int64 {
	return s.User.ID
}

// HasRefreshToken reports whether the session can be renewed.
func (s *Session) HasRefreshToken() bool {
	return s != nil && s.RefreshToken != ""
}

// AuthResponse is returned by /login and /register.
type AuthResponse struct {
	Message      string `json:"message,omitempty"`
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session converts the response into a session value.
func (r *AuthResponse) Session() *Session {
	return &Session{
		User:         r.User,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}

// RefreshResponse is returned by /refresh. RefreshToken is set only when
// the server rotates it.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
