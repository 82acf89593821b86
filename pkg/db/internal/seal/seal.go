// Package seal restricts which types may implement db.Database.
//
// The package lives under pkg/db/internal so only the database package and
// its backends can import it. Code outside that tree can call a Database it
// is handed but cannot name Token, so it cannot author a new implementation.
package seal

// Token is the value returned by Seal. Its zero value is the only value.
type Token struct{ _ struct{} }

// Sealed is embedded in db.Database.
type Sealed interface {
	Seal() Token
}

// Marker satisfies Sealed. Backends embed it.
type Marker struct{}

func (Marker) Seal() Token { return Token{} }
