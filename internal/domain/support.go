package domain

import "time"

// SupportMessage is one line of a customer's support conversation. Response
// holds the automatic reply to a customer message; admin messages carry none.
type SupportMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  *string   `json:"response"`
	FromAdmin bool      `json:"from_admin"`
	CreatedAt time.Time `json:"created_at"`
}
