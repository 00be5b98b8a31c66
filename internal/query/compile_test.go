package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var todoAllow = NewAllowList("title", "is_completed", "priority", "location", "tags")

func mustCompile(t *testing.T, doc string) Node {
	t.Helper()
	node, err := Compile([]byte(doc), todoAllow)
	require.NoError(t, err)
	return node
}

func TestCompileEmpty(t *testing.T) {
	for _, doc := range []string{"", "  ", "{}"} {
		node, err := Compile([]byte(doc), todoAllow)
		require.NoError(t, err, doc)
		assert.Nil(t, node, doc)
	}
}

func TestCompileMalformed(t *testing.T) {
	for _, doc := range []string{"{nope", "[1,2]", `"where"`} {
		_, err := Compile([]byte(doc), todoAllow)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, doc)
	}
}

func TestCompileComparisons(t *testing.T) {
	t.Run("bare value is implicit eq", func(t *testing.T) {
		node := mustCompile(t, `{"is_completed": false}`)
		cmp, ok := node.(Comparison)
		require.True(t, ok)
		assert.Equal(t, "is_completed", cmp.Field)
		assert.Equal(t, OpEq, cmp.Op)
		assert.Equal(t, false, cmp.Operand)
	})

	t.Run("bare list is eq against the list, not in", func(t *testing.T) {
		node := mustCompile(t, `{"tags": ["a", "b"]}`)
		cmp, ok := node.(Comparison)
		require.True(t, ok)
		assert.Equal(t, OpEq, cmp.Op)
		assert.Equal(t, []any{"a", "b"}, cmp.Operand)
	})

	t.Run("explicit operators", func(t *testing.T) {
		node := mustCompile(t, `{"priority": {"$gt": 1, "$lte": 5}}`)
		and, ok := node.(Logical)
		require.True(t, ok)
		require.Equal(t, LogicalAnd, and.Op)
		require.Len(t, and.Children, 2)
		assert.Equal(t, OpGt, and.Children[0].(Comparison).Op)
		assert.Equal(t, OpLe, and.Children[1].(Comparison).Op, "$lte canonicalizes to $le")
	})

	t.Run("gte alias", func(t *testing.T) {
		node := mustCompile(t, `{"priority": {"$gte": 2}}`)
		assert.Equal(t, OpGe, node.(Comparison).Op)
	})

	t.Run("regex aliases collapse onto contains", func(t *testing.T) {
		node := mustCompile(t, `{"title": {"$regex": "foo"}}`)
		assert.Equal(t, OpContains, node.(Comparison).Op)

		node = mustCompile(t, `{"title": {"$iregex": "foo"}}`)
		assert.Equal(t, OpIContains, node.(Comparison).Op)
	})

	t.Run("in requires an array", func(t *testing.T) {
		node := mustCompile(t, `{"priority": {"$in": [1, 2, 3]}}`)
		assert.Equal(t, OpIn, node.(Comparison).Op)

		_, err := Compile([]byte(`{"priority": {"$in": 3}}`), todoAllow)
		require.Error(t, err)
	})

	t.Run("exists requires a boolean", func(t *testing.T) {
		node := mustCompile(t, `{"title": {"$exists": true}}`)
		assert.Equal(t, OpExists, node.(Comparison).Op)

		_, err := Compile([]byte(`{"title": {"$exists": "yes"}}`), todoAllow)
		require.Error(t, err)
	})

	t.Run("text operators require strings", func(t *testing.T) {
		_, err := Compile([]byte(`{"title": {"$contains": 5}}`), todoAllow)
		require.Error(t, err)
	})
}

func TestCompileLogical(t *testing.T) {
	t.Run("sibling fields combine with implicit and", func(t *testing.T) {
		node := mustCompile(t, `{"is_completed": false, "priority": 3}`)
		and, ok := node.(Logical)
		require.True(t, ok)
		assert.Equal(t, LogicalAnd, and.Op)
		assert.Len(t, and.Children, 2)
	})

	t.Run("explicit or", func(t *testing.T) {
		node := mustCompile(t, `{"$or": [{"priority": 1}, {"priority": 2}]}`)
		or, ok := node.(Logical)
		require.True(t, ok)
		assert.Equal(t, LogicalOr, or.Op)
		assert.Len(t, or.Children, 2)
	})

	t.Run("single-item glue collapses", func(t *testing.T) {
		node := mustCompile(t, `{"$and": [{"priority": 1}]}`)
		_, ok := node.(Comparison)
		assert.True(t, ok)
	})

	t.Run("not wraps an object", func(t *testing.T) {
		node := mustCompile(t, `{"$not": {"is_completed": true}}`)
		not, ok := node.(Logical)
		require.True(t, ok)
		assert.Equal(t, LogicalNot, not.Op)
		require.Len(t, not.Children, 1)
	})

	t.Run("glue requires arrays of objects", func(t *testing.T) {
		_, err := Compile([]byte(`{"$or": {"priority": 1}}`), todoAllow)
		require.Error(t, err)

		_, err = Compile([]byte(`{"$or": []}`), todoAllow)
		require.Error(t, err)

		_, err = Compile([]byte(`{"$and": [1, 2]}`), todoAllow)
		require.Error(t, err)
	})

	t.Run("empty objects inside combinators fail", func(t *testing.T) {
		_, err := Compile([]byte(`{"$not": {}}`), todoAllow)
		require.Error(t, err)

		_, err = Compile([]byte(`{"$and": [{}]}`), todoAllow)
		require.Error(t, err)

		_, err = Compile([]byte(`{"$or": [{"priority": 1}, {}]}`), todoAllow)
		require.Error(t, err)
	})
}

func TestCompileAllowList(t *testing.T) {
	t.Run("field outside the allow-list fails", func(t *testing.T) {
		_, err := Compile([]byte(`{"secret": 1}`), todoAllow)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Error(), "secret")
	})

	t.Run("one disallowed field anywhere fails the whole document", func(t *testing.T) {
		doc := `{"$or": [{"priority": 1}, {"$not": {"secret": 2}}]}`
		_, err := Compile([]byte(doc), todoAllow)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("problems aggregate", func(t *testing.T) {
		doc := `{"secret": 1, "ghost": 2, "priority": {"$bogus": 3}}`
		_, err := Compile([]byte(doc), todoAllow)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve.Problems, 3)
	})

	t.Run("nil allow-list allows nothing", func(t *testing.T) {
		_, err := Compile([]byte(`{"priority": 1}`), nil)
		require.Error(t, err)
	})
}

func TestCompileUnknownOperators(t *testing.T) {
	_, err := Compile([]byte(`{"$xor": [{"priority": 1}]}`), todoAllow)
	require.Error(t, err)

	_, err = Compile([]byte(`{"priority": {"$almost": 3}}`), todoAllow)
	require.Error(t, err)

	_, err = Compile([]byte(`{"priority": {}}`), todoAllow)
	require.Error(t, err)
}

func TestCompileSpatial(t *testing.T) {
	t.Run("within", func(t *testing.T) {
		doc := `{"location": {"$geo.within": {"type": "Polygon", "coordinates": [[[0,0],[0,1],[1,1],[0,0]]]}}}`
		node := mustCompile(t, doc)
		sp, ok := node.(Spatial)
		require.True(t, ok)
		assert.Equal(t, OpGeoWithin, sp.Op)
		assert.Equal(t, "Polygon", sp.Geometry.Type)
	})

	t.Run("dwithin carries distance", func(t *testing.T) {
		doc := `{"location": {"$geo.dwithin": {"geometry": {"type": "Point", "coordinates": [1,2]}, "distance": 5.5}}}`
		node := mustCompile(t, doc)
		sp := node.(Spatial)
		assert.Equal(t, OpGeoDWithin, sp.Op)
		assert.Equal(t, 5.5, sp.Distance)
	})

	t.Run("geometry shape is validated", func(t *testing.T) {
		for _, doc := range []string{
			`{"location": {"$geo.within": {"coordinates": [1,2]}}}`,
			`{"location": {"$geo.within": {"type": "Point"}}}`,
			`{"location": {"$geo.within": {"type": "Point", "coordinates": "1,2"}}}`,
			`{"location": {"$geo.dwithin": {"geometry": {"type": "Point", "coordinates": [1,2]}}}}`,
			`{"location": {"$geo.dwithin": {"geometry": {"type": "Point", "coordinates": [1,2]}, "distance": "5"}}}`,
		} {
			_, err := Compile([]byte(doc), todoAllow)
			require.Error(t, err, doc)
		}
	})
}
