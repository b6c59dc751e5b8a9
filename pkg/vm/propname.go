package vm

// PropNameID identifies a string-named property for the current runtime.
type PropNameID struct {
	name string
}

// NewPropNameID creates an identifier for name.
func NewPropNameID(name string) PropNameID {
	return PropNameID{name: name}
}

// Text returns the property name.
func (p PropNameID) Text() string { return p.name }

func (p PropNameID) Equals(other PropNameID) bool { return p.name == other.name }

func (p PropNameID) String() string { return p.name }

// PropNameIDsFromStrings converts plain names into identifiers, preserving order.
func PropNameIDsFromStrings(names []string) []PropNameID {
	ids := make([]PropNameID, len(names))
	for i, n := range names {
		ids[i] = NewPropNameID(n)
	}
	return ids
}
