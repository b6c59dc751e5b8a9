package vm

// ArrayToPropNameIDs converts an array of names, as produced by
// Runtime.GetPropertyNames, into property identifiers. Non-arrays yield nil.
func ArrayToPropNameIDs(arr Value) []PropNameID {
	if arr.typ != TypeArray {
		return nil
	}
	a := arr.AsArray()
	ids := make([]PropNameID, a.Length())
	for i := range ids {
		ids[i] = NewPropNameID(a.Get(i).ToString())
	}
	return ids
}

// PropNameIDsToArray is the inverse of ArrayToPropNameIDs.
func PropNameIDsToArray(ids []PropNameID) Value {
	names := make([]Value, len(ids))
	for i, id := range ids {
		names[i] = NewString(id.Text())
	}
	return NewArrayWithArgs(names)
}
