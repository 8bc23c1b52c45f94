package auth

// Employee is the authenticated identity behind every mutation.
type Employee struct {
	ID           int64
	Name         string
	Email        string
	Role         string
	PasswordHash string
	IsActive     bool
}
