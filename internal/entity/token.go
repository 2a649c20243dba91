package entity

// ClaimKind names the deliverable a download token points at.
type ClaimKind string

const (
	ClaimSingleItem     ClaimKind = "item"
	ClaimCategoryBundle ClaimKind = "bundle"
	ClaimCustomFile     ClaimKind = "custom"
	ClaimLegacyFile     ClaimKind = "legacy"
)

// Claim is the payload carried by a signed download token. It is only a
// capability hint: the entitlement is re-checked on every redemption.
type Claim struct {
	Kind         ClaimKind
	CategorySlug string
	MemberID     string
	ProductID    string
	LegacyPath   string // goods-dir relative path, legacy manifest deliveries
}

// Entitlement is the externally verified fact that a purchase session paid
// for a set of product ids. Never derived from client-supplied state.
type Entitlement struct {
	SessionID     string
	ProductIDs    []string
	CustomerEmail string
}

// Covers reports whether the entitlement includes the claim's target. A
// single-item claim is also covered by the owning category's bundle id.
// Legacy claims carry no entity id; their binding happened at mint time.
func (e *Entitlement) Covers(c *Claim) bool {
	if e == nil || c == nil {
		return false
	}

	ids := make(map[string]struct{}, len(e.ProductIDs))
	for _, id := range e.ProductIDs {
		ids[id] = struct{}{}
	}

	switch c.Kind {
	case ClaimSingleItem:
		if _, ok := ids[ItemID(c.CategorySlug, c.MemberID)]; ok {
			return true
		}
		_, ok := ids[CategoryCardID(c.CategorySlug)]

		return ok
	case ClaimCategoryBundle:
		_, ok := ids[CategoryCardID(c.CategorySlug)]

		return ok
	case ClaimCustomFile:
		_, ok := ids[c.ProductID]

		return ok
	case ClaimLegacyFile:
		return true
	}

	return false
}

// GrantedDownload is one ready-to-serve download offered to a paid session.
type GrantedDownload struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}
