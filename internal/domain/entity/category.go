package entity

// Category is one of the fixed listing categories shown as filter chips.
type Category string

const (
	CategoryAll       Category = "すべて"
	CategoryFridge    Category = "冷蔵庫"
	CategoryMicrowave Category = "電子レンジ"
	CategoryWasher    Category = "洗濯機"
	CategoryFood      Category = "食品"
	CategoryOther     Category = "その他"
)

// DefaultListingCategory is used when a new listing omits its category.
const DefaultListingCategory = CategoryOther

// Categories lists every filter value in display order, "all" first.
var Categories = []Category{
	CategoryAll,
	CategoryFridge,
	CategoryMicrowave,
	CategoryWasher,
	CategoryFood,
	CategoryOther,
}

// IsAll reports whether the category means "no filter".
func (c Category) IsAll() bool {
	return c == "" || c == CategoryAll
}

// IsListable reports whether a listing may carry this category.
func (c Category) IsListable() bool {
	switch c {
	case CategoryFridge, CategoryMicrowave, CategoryWasher, CategoryFood, CategoryOther:
		return true
	}
	return false
}
