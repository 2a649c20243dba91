package entity

// PlaceholderImage is the shared fallback card image, relative to the static
// dir.
const PlaceholderImage = "cards/_placeholder.png"

// CategoryKind tells how a category is backed on disk.
type CategoryKind int

const (
	CategoryDir CategoryKind = iota
	CategoryZip
)

func (k CategoryKind) String() string {
	return [...]string{"dir", "zip"}[k]
}

// Category is a top-level grouping in the products root, backed by a
// directory or a zip archive. Identity is the slug derived from the display
// name (fallback: base name); first scan order wins on collisions.
type Category struct {
	Slug        string
	Name        string // directory / archive base name
	DisplayName string
	PriceFrom   float64
	ShortDesc   string
	Description string // HTML rendered from description.md, if any
	Kind        CategoryKind
	SourcePath  string
	CardImage   string // static-relative path to the card image
	Enabled     bool
}

// Member is a single file inside a category.
type Member struct {
	ID      string
	Display string // forward-slash display path relative to the category
	Rel     string // relative path (zip entry name for archive categories)
	Abs     string // absolute path, directory-backed categories only
	Ext     string // lowercase extension including the dot
}
