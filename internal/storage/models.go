package storage

import (
	"time"
)

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaLastImport    = "last_import"
)

const schemaVersion = "1"

// ImportRecord is what the metadata bucket remembers about the most recent
// listing import.
type ImportRecord struct {
	URL      string    `json:"url"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Finished time.Time `json:"finished"`
}
