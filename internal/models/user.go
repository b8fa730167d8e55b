package models

// User is the identity returned by the API when an operator signs in.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Name returns the best human readable name for the user.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	}
	return u.ID
}
