package fieldset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-rest/internal/entity"
)

func testEntity(t *testing.T) *entity.Entity {
	t.Helper()
	e, err := entity.New("todo", "todos", []entity.Field{
		{Name: "id", Type: entity.TypeInt, Readable: true},
		{Name: "title", Type: entity.TypeString, Readable: true, Writable: true},
		{Name: "is_completed", Type: entity.TypeBool, Readable: true, Writable: true},
		{Name: "secret_note", Type: entity.TypeString, Writable: true},
	}, map[string]entity.RW{
		"secret_note": {Readable: false, Writable: false},
	})
	require.NoError(t, err)
	return e
}

func TestResolve(t *testing.T) {
	e := testEntity(t)

	t.Run("derived from readable flags", func(t *testing.T) {
		d := &Definition{}
		fields, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "title", "is_completed"}, fields)
	})

	t.Run("derived from writable flags with override", func(t *testing.T) {
		d := &Definition{}
		fields, err := d.Resolve(e, Parse)
		require.NoError(t, err)
		// secret_note is writable on the field but the override removes it.
		assert.Equal(t, []string{"title", "is_completed"}, fields)
	})

	t.Run("attributes used verbatim", func(t *testing.T) {
		d := &Definition{Attributes: []string{"title", "id", "title"}}
		fields, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "id"}, fields)
	})

	t.Run("include appends and exclude filters", func(t *testing.T) {
		d := &Definition{
			Include: []string{"secret_note"},
			Exclude: []string{"is_completed"},
		}
		fields, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "title", "secret_note"}, fields)
	})

	t.Run("unknown name is a config error", func(t *testing.T) {
		d := &Definition{Exclude: []string{"ghost"}}
		_, err := d.Resolve(e, Serialize)
		var cfgErr *entity.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "ghost", cfgErr.Field)
	})

	t.Run("exclude everything yields empty set", func(t *testing.T) {
		d := &Definition{
			Attributes: []string{"id"},
			Exclude:    []string{"id"},
		}
		fields, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Empty(t, fields)
		assert.NotNil(t, fields)
	})
}

func TestResolveCaching(t *testing.T) {
	e := testEntity(t)

	t.Run("first resolution freezes the set", func(t *testing.T) {
		d := &Definition{Attributes: []string{"id", "title"}}
		first, err := d.Resolve(e, Serialize)
		require.NoError(t, err)

		// Later mutation of the definition does not change the result.
		d.Exclude = []string{"title"}
		second, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("directions cache independently", func(t *testing.T) {
		// id is readable but not writable, so the same definition must
		// produce different sets depending on direction even after one
		// of them has been cached.
		d := &Definition{}
		serialized, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "title", "is_completed"}, serialized)

		parsed, err := d.Resolve(e, Parse)
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "is_completed"}, parsed)

		again, err := d.Resolve(e, Serialize)
		require.NoError(t, err)
		assert.Equal(t, serialized, again)
	})

	t.Run("concurrent first use is race-safe", func(t *testing.T) {
		d := &Definition{}
		var wg sync.WaitGroup
		results := make([][]string, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fields, err := d.Resolve(e, Serialize)
				require.NoError(t, err)
				results[i] = fields
			}(i)
		}
		wg.Wait()

		for _, r := range results {
			assert.Equal(t, results[0], r)
		}
	})
}
