package model

// Category is the closed taxonomy a line item is filed under.
type Category string

const (
	CategoryLabor         Category = "labor"
	CategoryPlanning      Category = "planning"
	CategoryShooting      Category = "shooting"
	CategoryCast          Category = "cast"
	CategoryEditingMA     Category = "editing_ma"
	CategoryMisc          Category = "misc"
	CategoryManagementFee Category = "management_fee"
)

// Categories lists the taxonomy in display order.
var Categories = []Category{
	CategoryLabor,
	CategoryPlanning,
	CategoryShooting,
	CategoryCast,
	CategoryEditingMA,
	CategoryMisc,
	CategoryManagementFee,
}

var categoryLabels = map[Category]string{
	CategoryLabor:         "制作人件費",
	CategoryPlanning:      "企画",
	CategoryShooting:      "撮影費",
	CategoryCast:          "出演関連費",
	CategoryEditingMA:     "編集費・MA費",
	CategoryMisc:          "諸経費",
	CategoryManagementFee: "管理費",
}

// Label returns the Japanese display label used on quotes.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is one of the taxonomy values.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// CategoryFromLabel maps a Japanese display label back to its category.
func CategoryFromLabel(label string) (Category, bool) {
	for c, l := range categoryLabels {
		if l == label {
			return c, true
		}
	}
	return "", false
}

// Canonical units.
const (
	UnitDay    = "day"
	UnitLot    = "lot"
	UnitPerson = "person"
	UnitHour   = "hour"
	UnitCut    = "cut"
	UnitUnit   = "unit"
)

// LineItem is one cost row of an estimate.
type LineItem struct {
	Category  Category `json:"category"`
	Task      string   `json:"task"`
	Quantity  float64  `json:"qty"`
	Unit      string   `json:"unit"`
	UnitPrice int64    `json:"unit_price"`
	Note      string   `json:"note,omitempty"`

	// Subtotal is derived by the pricing calculator; for non-management rows it
	// already includes the rush coefficient.
	Subtotal int64 `json:"subtotal"`

	// NeedsReview marks rows where a numeric field could not be parsed and was
	// defaulted to zero.
	NeedsReview bool `json:"needs_review,omitempty"`
}

// IsManagementFee reports whether the row is the management fee row.
func (li LineItem) IsManagementFee() bool {
	return li.Category == CategoryManagementFee
}

// Totals is the derived aggregate of a priced line-item list.
type Totals struct {
	RushCoefficient        float64 `json:"rush_coefficient"`
	SubtotalExclManagement int64   `json:"subtotal_excl_management"`
	ManagementFeeFinal     int64   `json:"management_fee_final"`
	TaxableSubtotal        int64   `json:"taxable_subtotal"`
	Tax                    int64   `json:"tax"`
	Total                  int64   `json:"total"`
}
