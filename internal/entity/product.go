package entity

// ProductKind discriminates the sellable-entity union. Id prefixes
// (dbcat:/dbitem:/cat:/custom:) are kept as stable external identifiers, but
// code branches on Kind, never on the prefix.
type ProductKind int

const (
	KindCategoryCard ProductKind = iota // scanned category, navigation only
	KindCustomCategoryCard
	KindItem // one member of a scanned category
	KindCustomProduct
)

func (k ProductKind) String() string {
	return [...]string{"category_card", "custom_category_card", "item", "custom"}[k]
}

// Product is the unit exposed to checkout. Identity is immutable once
// created; every other field is an override target.
type Product struct {
	ID           string
	Kind         ProductKind
	Title        string
	Category     string
	PricePLN     float64
	Description  string
	Images       []string
	CatSlug      string // owning scanned-category slug; optional binding for customs
	ItemID       string // member id, items only
	DownloadFile string // goods-dir relative file, custom products only
}

// PrimaryImage returns the first image or "".
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}

	return p.Images[0]
}

// Purchasable reports whether the product may enter a cart. Category cards
// are navigation only.
func (p *Product) Purchasable() bool {
	return p.Kind == KindItem || p.Kind == KindCustomProduct
}

// IsCategoryCard reports whether the product is a navigation card of either
// flavor.
func (p *Product) IsCategoryCard() bool {
	return p.Kind == KindCategoryCard || p.Kind == KindCustomCategoryCard
}

func CategoryCardID(slug string) string { return "dbcat:" + slug }

func ItemID(slug, memberID string) string { return "dbitem:" + slug + ":" + memberID }

func CustomCategoryCardID(slug string) string { return "cat:" + slug }

func CustomProductID(raw string) string { return "custom:" + raw }
