package directory

// Identity is what a successful password check learns about the user.
type Identity struct {
	DN    string
	Email string
	Name  string
}

// VerifyOutcome is the result of VerifyPassword. It is one of Verified,
// NotFound, WrongPassword or Unreachable.
type VerifyOutcome interface {
	outcome()
}

type Verified struct {
	Identity Identity
}

// NotFound means the service search matched zero entries or more than one.
type NotFound struct{}

type WrongPassword struct{}

// Unreachable covers dial, TLS, service bind and search failures.
type Unreachable struct {
	Err error
}

func (Verified) outcome()      {}
func (NotFound) outcome()      {}
func (WrongPassword) outcome() {}
func (Unreachable) outcome()   {}
