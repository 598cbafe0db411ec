package types

// Address is the delivery address snapshot stored on an order. Orders keep
// their own copy so later edits to the buyer's saved addresses never rewrite
// history.
type Address struct {
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2,omitempty"`
	Landmark   string  `json:"landmark,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Phone      string  `json:"phone"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
}
