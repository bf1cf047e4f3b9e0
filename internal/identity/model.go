package identity

import "time"

// User is the owner of a wallet.
type User struct {
	ID        string
	Email     string
	Name      string
	PINHash   []byte
	CreatedAt time.Time
}

// Credentials identify a user at registration and login.
type Credentials struct {
	Email string
	Name  string
	PIN   string
}
