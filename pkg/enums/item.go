package enums

// ItemStatus maps to the item_status enum in Postgres.
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "ACTIVE"
	ItemStatusInactive ItemStatus = "INACTIVE"
	ItemStatusAwarded  ItemStatus = "AWARDED"
)

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusActive, ItemStatusInactive, ItemStatusAwarded:
		return true
	}
	return false
}
