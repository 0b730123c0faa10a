package catalog

import (
	"embed"
	"io/fs"
)

// DefaultCatalogPath is the location of the built-in catalog inside CatalogFS.
const DefaultCatalogPath = "catalogs/catalog.yaml"

//go:embed catalogs
var builtinCatalogs embed.FS

// CatalogFS returns the embedded filesystem holding the built-in catalog.
func CatalogFS() fs.FS {
	return builtinCatalogs
}
