package store

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// File is one indexed translation unit.
type File struct {
	ID           int64     `json:"id"`
	Path         string    `json:"path"`
	Hash         string    `json:"hash"`
	PDOMFile     int64     `json:"pdom_file"` // file record in the PDOM store
	BindingCount int       `json:"binding_count"`
	NameCount    int       `json:"name_count"`
	LastIndexed  time.Time `json:"last_indexed"`
}

// Unit is everything the registry keeps for one indexing of a file.
type Unit struct {
	File     File
	Bindings *roaring64.Bitmap
	Errors   []string
}
