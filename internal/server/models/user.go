// Package models holds the server's account records. Worksheets use the
// shared internal/models type.
package models

import "time"

// User is an account. The password itself is never stored: Verifier is
// derived on the client from the password and Salt.
type User struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
