package domain

// Credentials is the bearer token pair issued by the backend.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// IsZero reports whether no access token is held.
func (c Credentials) IsZero() bool {
	return c.AccessToken == ""
}

// CanRefresh reports whether a refresh token is available.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}
