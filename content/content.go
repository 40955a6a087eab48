// Package content embeds the bundled character templates.
package content

import (
	"embed"

	"github.com/cory-johannsen/duel/internal/game/character"
)

// CharactersDir is the directory within FS holding one YAML file per character.
const CharactersDir = "characters"

//go:embed characters/*.yaml
var FS embed.FS

// Catalog loads every bundled character into a synchronous catalog.
//
// Postcondition: Returns a validated catalog, or the first parse or
// validation error.
func Catalog() (*character.BundledCatalog, error) {
	return character.LoadBundledCatalog(FS, CharactersDir)
}
