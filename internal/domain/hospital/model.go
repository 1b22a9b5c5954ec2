package hospital

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

type Hospital struct {
	ID        int64     `db:"hospital_id" json:"hospital_id"`
	Name      string    `db:"hospital_name" json:"hospital_name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Slugify is the normalized key hospitals are deduplicated on. Names that
// differ only in case, spacing or punctuation share a slug.
func Slugify(name string) string {
	return slug.Make(strings.TrimSpace(name))
}
