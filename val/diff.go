package val

// Diff derives the minimal patch that transforms prev into next under
// the store's merge semantics.
//
// For record-to-record transitions the patch contains exactly the keys
// whose values changed or appeared, plus a Removed marker for every key
// of prev absent from next. Merge(prev, patch) then reproduces next
// exactly. Any other kind combination is a full replacement: the patch
// is next itself.
//
// The second return is false when prev and next are structurally equal
// and no patch exists.
func Diff(prev, next Value) (Value, bool) {
	pObj, pOK := prev.(Object)
	nObj, nOK := next.(Object)
	if !pOK || !nOK {
		if Equal(prev, next) {
			return nil, false
		}
		return next, true
	}

	delta := Object{}
	for k, nv := range nObj {
		pv, ok := pObj[k]
		if !ok || !Equal(pv, nv) {
			delta[k] = nv
		}
	}
	for k := range pObj {
		if _, ok := nObj[k]; !ok {
			delta[k] = Removed{}
		}
	}

	if len(delta) == 0 {
		return nil, false
	}
	return delta, true
}
