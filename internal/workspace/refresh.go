package workspace

// RefreshToken is a monotonic rebuild counter. Equal tokens mean the last
// composed payload is still current.
type RefreshToken uint64

// Next returns the following token.
func (t RefreshToken) Next() RefreshToken { return t + 1 }
