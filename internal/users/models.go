package users

import "time"

// User is the registered account placing or receiving calls. ContactID
// points at the user's own verified contact row; CreditID at the single
// active credit bucket billing draws from.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	CountryCode string    `json:"country_code"`
	ContactID   string    `json:"contact_id"`
	CreditID    string    `json:"credit_id,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
