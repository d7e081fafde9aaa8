package def

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statecell-io/statecell/val"
)

func compileString(t *testing.T, src, path string) cue.Value {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return v.LookupPath(cue.ParsePath(path))
}

func TestCompileBasic(t *testing.T) {
	v := compileString(t, `
		store: counter: {
			doc:     "monotonic counter"
			initial: {count: 0}
		}
	`, "store.counter")

	spec, err := Compile("counter", v)
	require.NoError(t, err)

	assert.Equal(t, "counter", spec.Name)
	assert.Equal(t, "monotonic counter", spec.Doc)
	assert.True(t, val.Equal(spec.Initial, val.Object{"count": val.Int(0)}))
	assert.Equal(t, map[string]string{"count": "int"}, spec.Schema)
}

func TestCompileAllKinds(t *testing.T) {
	v := compileString(t, `
		store: kinds: {
			initial: {
				name:  "alpha"
				count: 3
				ratio: 0.5
				on:    true
				note:  null
				tags: ["a", "b"]
				meta: {depth: 2}
			}
		}
	`, "store.kinds")

	spec, err := Compile("kinds", v)
	require.NoError(t, err)

	expected := val.Object{
		"name":  val.String("alpha"),
		"count": val.Int(3),
		"ratio": val.Float(0.5),
		"on":    val.Bool(true),
		"note":  val.Null{},
		"tags":  val.Array{val.String("a"), val.String("b")},
		"meta":  val.Object{"depth": val.Int(2)},
	}
	assert.True(t, val.Equal(spec.Initial, expected))

	assert.Equal(t, map[string]string{
		"name":  "string",
		"count": "int",
		"ratio": "float",
		"on":    "bool",
		"note":  "null",
		"tags":  "array",
		"meta":  "object",
	}, spec.Schema)
}

func TestCompileScalarInitial(t *testing.T) {
	v := compileString(t, `
		store: gauge: {
			initial: 42
		}
	`, "store.gauge")

	spec, err := Compile("gauge", v)
	require.NoError(t, err)

	assert.True(t, val.Equal(spec.Initial, val.Int(42)))
	assert.Nil(t, spec.Schema)
}

func TestCompileEmptyDoc(t *testing.T) {
	v := compileString(t, `
		store: bare: {
			initial: {}
		}
	`, "store.bare")

	spec, err := Compile("bare", v)
	require.NoError(t, err)

	assert.Empty(t, spec.Doc)
	assert.True(t, val.Equal(spec.Initial, val.Object{}))
}

func TestCompileMissingInitial(t *testing.T) {
	v := compileString(t, `
		store: bad: {
			doc: "no initial"
		}
	`, "store.bad")

	_, err := Compile("bad", v)
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "bad", compileErr.Def)
	assert.Equal(t, "initial", compileErr.Field)
	assert.Contains(t, err.Error(), "required")
}

func TestCompileNonConcreteInitial(t *testing.T) {
	v := compileString(t, `
		store: vague: {
			initial: {count: int}
		}
	`, "store.vague")

	_, err := Compile("vague", v)
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "initial.count", compileErr.Field)
	assert.Contains(t, err.Error(), "not concrete")
}

func TestCompileBadDoc(t *testing.T) {
	v := compileString(t, `
		store: bad: {
			doc:     42
			initial: {a: 1}
		}
	`, "store.bad")

	_, err := Compile("bad", v)
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "doc", compileErr.Field)
	assert.Contains(t, err.Error(), "string")
}

func TestCompileRejectsRemovalMarker(t *testing.T) {
	v := compileString(t, `
		store: bad: {
			initial: {gone: {"$removed": true}}
		}
	`, "store.bad")

	_, err := Compile("bad", v)
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "initial.gone", compileErr.Field)
	assert.Contains(t, err.Error(), "removal marker")
}

func TestCompileNestedListError(t *testing.T) {
	v := compileString(t, `
		store: bad: {
			initial: {items: [1, string]}
		}
	`, "store.bad")

	_, err := Compile("bad", v)
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "initial.items[1]", compileErr.Field)
}
