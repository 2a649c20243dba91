package entity

// Overrides is one consistent snapshot of every override layer. Each call
// into the store re-reads the documents, so concurrent readers never share a
// half-applied edit.
type Overrides struct {
	Titles       map[string]string
	Prices       map[string]float64
	Descriptions map[string]string
	Categories   map[string]string
	Photos       map[string]string
	Deleted      map[string]struct{}

	CustomCategories []string
	CustomProducts   []CustomProductRecord
}

// CustomProductRecord is one entry of the custom products document, as
// entered by an administrator.
type CustomProductRecord struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	PricePLN    float64 `json:"price_pln"`
	Image       string  `json:"image,omitempty"`
	File        string  `json:"file,omitempty"`
	Category    string  `json:"category,omitempty"`
	CatSlug     string  `json:"docu_cat_slug,omitempty"`
}
