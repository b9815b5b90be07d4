package types

// User is the authenticated caller, resolved from the session on every
// request.
type User struct {
	ID    string
	Email string
}
