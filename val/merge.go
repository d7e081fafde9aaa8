package val

// Merge applies a record patch to record state field-wise: patch fields
// overwrite base fields, and fields mapped to Removed are deleted. The
// merge is shallow, matching the store's commit semantics. Neither input
// is modified; unchanged field values are shared with the result.
func Merge(base Object, patch Object) Object {
	out := make(Object, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if _, removed := v.(Removed); removed {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
