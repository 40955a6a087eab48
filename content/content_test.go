package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duel/internal/game/character"
)

func TestCatalogLoadsBundledCharacters(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)

	slugs, err := cat.Available(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"goblin", "knight"}, slugs)
}

// Every own move has a row, every entry resolves, and the sentinel only marks
// cross-range pairs.
func TestBundledTablesAreComplete(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)
	ctx := context.Background()
	slugs, err := cat.Available(ctx)
	require.NoError(t, err)

	for _, slug := range slugs {
		c, err := cat.Character(ctx, slug)
		require.NoError(t, err)
		for _, own := range c.Moves {
			row, ok := c.Table[own.ID]
			require.True(t, ok, "%s: missing row %s", slug, own.ID)
			for _, other := range c.Moves {
				entry, ok := row[other.ID]
				require.True(t, ok, "%s: missing entry [%s][%s]", slug, own.ID, other.ID)
				if entry == character.Impossible {
					assert.NotEqual(t, own.Range, other.Range, "%s: [%s][%s]", slug, own.ID, other.ID)
					continue
				}
				_, ok = c.Result(entry)
				assert.True(t, ok, "%s: [%s][%s] -> %q", slug, own.ID, other.ID, entry)
			}
		}
	}
}

// Characters share a move id space so one side's move id is a valid column in
// the other's table.
func TestBundledCharactersShareMoveIDs(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)
	ctx := context.Background()
	knight, err := cat.Character(ctx, "knight")
	require.NoError(t, err)
	goblin, err := cat.Character(ctx, "goblin")
	require.NoError(t, err)
	assert.Equal(t, knight.MoveIDs(), goblin.MoveIDs())
}
