package knowledge

import "time"

// Source tag constants for knowledge entries.
// The source identifies which system or process authored an entry and acts
// as a hard partition boundary for sync reconciliation.
const (
	// SourceManual represents entries created by hand in the back office.
	SourceManual = "manual"

	// SourceGstock represents entries generated from the GStock recipe feed.
	SourceGstock = "gstock"

	// SourceStaged represents entries published from the staged import review.
	SourceStaged = "staged"
)

// DefaultLanguage is the language code assigned to entries that do not
// specify one. The knowledge base serves a Spanish-speaking business.
const DefaultLanguage = "es"

// Entry is a unit of retrievable knowledge.
// Its vector representation is a derived projection: every create/update
// must upsert the corresponding vector and every delete must remove it.
type Entry struct {
	ID          string // Opaque stable identifier (UUID string)
	Title       string // Short descriptive title
	Content     string // Body text
	Section     string // Optional section label ("" = none)
	CategoryID  string // Optional category reference ("" = none)
	Source      string // Origin system tag (e.g. "manual", "gstock")
	ExternalKey string // Stable key in the origin system ("" = none); used by sync
	Language    string // Language code (default "es")
	Active      bool   // Visibility toggle; inactive entries are never retrieved
	ContentHash string // SHA-256 of normalized (title, content); dedup key
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is a query-classification taxonomy node.
// Flat set; managed outside this core and consumed as a filter dimension.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Draft is a candidate entry handed to the bulk importer before it is
// persisted. Title and Content are required; the rest default.
type Draft struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Section    string `json:"section,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	Source     string `json:"source,omitempty"`
	Language   string `json:"language,omitempty"`
}

// SyncEntry is one element of a source-scoped feed snapshot.
// ExternalKey identifies the entry in the origin system and drives the
// create/update/delete reconciliation.
type SyncEntry struct {
	ExternalKey string `json:"externalKey"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Section     string `json:"section,omitempty"`
	CategoryID  string `json:"categoryId,omitempty"`
	Language    string `json:"language,omitempty"`
}

// ImportReport summarizes a bulk import run.
type ImportReport struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// SyncReport summarizes a reconciliation run for one source.
type SyncReport struct {
	Source  string   `json:"source"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// SearchResult is one ranked retrieval hit joined with its stored entry.
type SearchResult struct {
	Entry Entry   `json:"entry"`
	Score float32 `json:"score"`
}

// BuildEmbedText constructs the text that is embedded for an entry.
// Including the section label alongside the title gives the embedding
// model the same context a reader would have.
func BuildEmbedText(title, content, section string) string {
	if section != "" {
		return title + " — " + section + "\n\n" + content
	}
	return title + "\n\n" + content
}
