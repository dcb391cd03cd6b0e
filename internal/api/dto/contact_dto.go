package dto

import "time"

// CreateContactRequest payload. Email is optional.
type CreateContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ContactResponse describes a contact.
type ContactResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
