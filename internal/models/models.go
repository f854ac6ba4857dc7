package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Offer is a stored earning opportunity.
type Offer struct {
	ID           int64
	Title        string
	Description  string
	Reward       string
	TelegramLink string
	ViewsCount   *int64 // NULL in legacy rows
	IsActive     bool
	CreatedAt    *time.Time
}

// PublicOffer is the projection returned by the listing.
type PublicOffer struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Reward       string  `json:"reward"`
	TelegramLink string  `json:"telegram_link"`
	ViewsCount   int64   `json:"views_count"`
	CreatedAt    *string `json:"created_at"` // RFC3339 or null
}

// Public maps a stored offer to its public projection.
func (o Offer) Public() PublicOffer {
	p := PublicOffer{
		ID:           o.ID,
		Title:        o.Title,
		Description:  o.Description,
		Reward:       o.Reward,
		TelegramLink: o.TelegramLink,
	}
	if o.ViewsCount != nil {
		p.ViewsCount = *o.ViewsCount
	}
	if o.CreatedAt != nil {
		s := o.CreatedAt.UTC().Format(time.RFC3339Nano)
		p.CreatedAt = &s
	}
	return p
}

// Reward accepts either a JSON string or a JSON number and keeps its text form.
type Reward string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reward) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Reward(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("reward must be a string or a number")
	}
	*r = Reward(n.String())
	return nil
}

// CreateOfferRequest is the POST body.
type CreateOfferRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Reward       Reward `json:"reward"`
	TelegramLink string `json:"telegram_link"`
}

// NewOffer holds the validated fields of an offer about to be inserted.
type NewOffer struct {
	Title        string
	Description  string
	Reward       string
	TelegramLink string
}

// ListOffersResponse is the GET response body.
type ListOffersResponse struct {
	Offers []PublicOffer `json:"offers"`
}

// CreateOfferResponse is the POST response body.
type CreateOfferResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// MessageResponse carries a plain confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
