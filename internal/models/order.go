package models

// OrderSpec holds the caller-supplied fields of an order before validation.
// Quantity and price stay strings end to end: SmartAPI serializes every
// numeric order field as a string.
type OrderSpec struct {
	TradingSymbol   string
	SymbolToken     string
	TransactionType string
	Exchange        string
	OrderType       string
	ProductType     string
	Quantity        string
	Price           string
}

// OrderResult is the normalized outcome of an order placement.
type OrderResult struct {
	OrderID string
	Message string
}

// OrderStatus is the normalized outcome of an order-book lookup.
type OrderStatus struct {
	OrderID string
	Status  string
	Details map[string]interface{}
}
