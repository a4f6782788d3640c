// Package schema records what the backup engine knows about the site's data
// model: which tables and buckets exist and how tables reference each other.
package schema

// PrimaryKey is the conflict column for every table.
const PrimaryKey = "id"

// NilID never matches a real row; deleting "everything but NilID" clears a
// table through an API that refuses unfiltered deletes.
const NilID = "00000000-0000-0000-0000-000000000000"

// Tables lists the site's tables in export order.
var Tables = []string{
	"settings",
	"lager",
	"lager_downloads",
	"lagerhaus",
	"sponsoren",
	"kontakt_nachrichten",
}

// Buckets lists the storage buckets.
var Buckets = []string{"images", "pdfs"}

// ForeignKey is a column holding the id of a row in Parent.
type ForeignKey struct {
	Column string
	Parent string
}

// References maps each table to its foreign keys.
var References = map[string][]ForeignKey{
	"settings":            nil,
	"lagerhaus":           nil,
	"sponsoren":           nil,
	"lager":               {{Column: "lagerhaus_id", Parent: "lagerhaus"}},
	"lager_downloads":     {{Column: "lager_id", Parent: "lager"}},
	"kontakt_nachrichten": nil,
}

// RestoreOrder is the order tables must be written in so that referenced
// rows exist before the rows pointing at them.
var RestoreOrder = []string{
	"settings",
	"lagerhaus",
	"sponsoren",
	"lager",
	"lager_downloads",
	"kontakt_nachrichten",
}

// IsTable reports whether name is one of the known tables.
func IsTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

// IsBucket reports whether name is one of the known buckets.
func IsBucket(name string) bool {
	for _, b := range Buckets {
		if b == name {
			return true
		}
	}
	return false
}
