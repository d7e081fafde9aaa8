package val

// Equal reports full structural equality. Kinds never compare equal
// across each other: Int(1) and Float(1) differ, as do Null and an
// absent field. The predicate is total, reflexive, and symmetric, which
// is what the store requires of any equality function plugged into it.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvk, ok := bv[k]
			if !ok || !Equal(v, bvk) {
				return false
			}
		}
		return true
	case Removed:
		_, ok := b.(Removed)
		return ok
	default:
		return false
	}
}
