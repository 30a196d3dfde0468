package contacts

import "time"

// Contact is a phone number known to the platform, owned either by a
// registered user or created on demand as a dial destination. SID is
// the provider-side verification id; a contact with an empty SID has
// never been verified and cannot be dialed from or to.
type Contact struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	PhoneNumber string     `json:"phone_number"`
	CountryCode string     `json:"country_code"`
	SID         string     `json:"sid,omitempty"`
	IsDeleted   bool       `json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Verified reports whether the provider has confirmed ownership of the
// number.
func (c Contact) Verified() bool {
	return c.SID != ""
}
