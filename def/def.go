// Package def compiles declarative store definitions written in CUE.
// A definition names a store, documents it, and pins the concrete
// initial state the engine seeds it with:
//
//	store: counter: {
//		doc:     "monotonic counter"
//		initial: {count: 0}
//	}
package def

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/statecell-io/statecell/val"
)

// Spec is one compiled store definition.
type Spec struct {
	Name    string
	Doc     string
	Initial val.Value
	// Schema maps top-level field names to kind names for record
	// initials. Nil when the initial is not a record.
	Schema map[string]string
}

// removedField is the reserved key of the removal-marker encoding.
// A definition whose initial contains it would decode as a marker
// after a journal round trip, so Compile rejects it.
const removedField = "$removed"

// Compile parses one store definition into a Spec.
//
// The CUE value should be the definition struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`store: counter: { initial: {count: 0} }`)
//	spec, err := Compile("counter", v.LookupPath(cue.ParsePath("store.counter")))
func Compile(name string, v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, wrapCUEError(name, err)
	}

	spec := &Spec{Name: name}

	docVal := v.LookupPath(cue.ParsePath("doc"))
	if docVal.Exists() {
		doc, err := docVal.String()
		if err != nil {
			return nil, &CompileError{
				Def:     name,
				Field:   "doc",
				Message: "doc must be a string",
				Pos:     docVal.Pos(),
			}
		}
		spec.Doc = doc
	}

	initialVal := v.LookupPath(cue.ParsePath("initial"))
	if !initialVal.Exists() {
		return nil, &CompileError{
			Def:     name,
			Field:   "initial",
			Message: "initial is required",
			Pos:     v.Pos(),
		}
	}

	initial, err := decodeValue(name, "initial", initialVal)
	if err != nil {
		return nil, err
	}
	spec.Initial = initial

	if fields, ok := initial.(val.Object); ok {
		spec.Schema = deriveSchema(fields)
	}

	return spec, nil
}

// decodeValue converts a concrete CUE value into the value model.
// path names the field being decoded for error reporting.
func decodeValue(def, path string, v cue.Value) (val.Value, error) {
	if err := v.Err(); err != nil {
		return nil, wrapCUEError(def, err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return val.Null{}, nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, wrapCUEError(def, err)
		}
		return val.Bool(b), nil

	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, &CompileError{
				Def:     def,
				Field:   path,
				Message: fmt.Sprintf("integer out of range: %v", err),
				Pos:     v.Pos(),
			}
		}
		return val.Int(i), nil

	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, &CompileError{
				Def:     def,
				Field:   path,
				Message: fmt.Sprintf("float out of range: %v", err),
				Pos:     v.Pos(),
			}
		}
		return val.Float(f), nil

	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, wrapCUEError(def, err)
		}
		return val.String(s), nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, wrapCUEError(def, err)
		}
		arr := val.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := decodeValue(def, fmt.Sprintf("%s[%d]", path, i), iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, wrapCUEError(def, err)
		}
		fields := val.Object{}
		for iter.Next() {
			label := iter.Label()
			fv, err := decodeValue(def, path+"."+label, iter.Value())
			if err != nil {
				return nil, err
			}
			fields[label] = fv
		}
		if b, ok := fields[removedField].(val.Bool); ok && bool(b) && len(fields) == 1 {
			return nil, &CompileError{
				Def:     def,
				Field:   path,
				Message: "the removal marker is reserved and cannot appear in an initial state",
				Pos:     v.Pos(),
			}
		}
		return fields, nil

	default:
		msg := fmt.Sprintf("unsupported value kind: %v", v.Kind())
		if v.Kind() == cue.BottomKind {
			msg = fmt.Sprintf("value is not concrete: %v", v.IncompleteKind())
		}
		return nil, &CompileError{
			Def:     def,
			Field:   path,
			Message: msg,
			Pos:     v.Pos(),
		}
	}
}

// deriveSchema maps top-level fields of a record initial to kind names.
func deriveSchema(fields val.Object) map[string]string {
	schema := make(map[string]string, len(fields))
	for k, v := range fields {
		schema[k] = val.KindOf(v)
	}
	return schema
}

// CompileError is a definition compilation error with source position.
type CompileError struct {
	Def     string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: store %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Def, e.Field, e.Message)
	}
	return fmt.Sprintf("store %s: %s: %s", e.Def, e.Field, e.Message)
}

// wrapCUEError extracts position info from CUE errors.
func wrapCUEError(def string, err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Def:     def,
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
