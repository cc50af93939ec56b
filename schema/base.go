package schema

// Base is a base schema
type Base struct{}

// String implements Schema interface
func (r Base) String() string {
	return ""
}
