package types

// BillingDetails is the customer snapshot captured at checkout and frozen
// onto the order.
type BillingDetails struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty"`
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}
