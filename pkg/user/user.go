package user

// User is the account the sync remote authenticates as.
type User struct {
	Uid         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}
