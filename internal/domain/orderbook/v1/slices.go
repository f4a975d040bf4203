package orderbookv1

// PriceLevels represents a slice of PriceLevel pointers, representing multiple price levels.
type PriceLevels []*PriceLevel

// ByBestAsk sorts PriceLevels by the best ask price (lowest price).
type ByBestAsk struct {
	PriceLevels
}

func (a ByBestAsk) Len() int {
	return len(a.PriceLevels)
}

func (a ByBestAsk) Less(i, j int) bool {
	return a.PriceLevels[i].Price.LessThan(a.PriceLevels[j].Price)
}

func (a ByBestAsk) Swap(i, j int) {
	a.PriceLevels[i], a.PriceLevels[j] = a.PriceLevels[j], a.PriceLevels[i]
}

// ByBestBid sorts PriceLevels by the best bid price (highest price).
type ByBestBid struct {
	PriceLevels
}

func (a ByBestBid) Len() int {
	return len(a.PriceLevels)
}

func (a ByBestBid) Less(i, j int) bool {
	return a.PriceLevels[i].Price.GreaterThan(a.PriceLevels[j].Price)
}

func (a ByBestBid) Swap(i, j int) {
	a.PriceLevels[i], a.PriceLevels[j] = a.PriceLevels[j], a.PriceLevels[i]
}

// Orders is a slice of Order pointers, representing multiple orders.
type Orders []*Order

func (o Orders) Len() int      { return len(o) }
func (o Orders) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o Orders) Less(i, j int) bool {
	if o[i].Timestamp == o[j].Timestamp {
		return o[i].Sequence < o[j].Sequence
	}
	return o[i].Timestamp < o[j].Timestamp
}
