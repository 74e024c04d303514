package models

import (
	"fmt"
	"time"
)

// ChatRequest is the inbound payload accepted by every transport
type ChatRequest struct {
	SessionID string      `json:"sessionId"`
	Message   string      `json:"message"`
	Visitor   VisitorInfo `json:"visitor,omitempty"`
}

// ChatResponse is what a turn hands back to the caller. Both fields are always present.
type ChatResponse struct {
	Response string    `json:"response"`
	Products []Product `json:"products"`
	Intent   string    `json:"intent,omitempty"`
}

// VisitorInfo is informational metadata supplied by the transport layer
type VisitorInfo struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	PageURL   string `json:"pageUrl,omitempty"`
}

// Directive is a product search instruction embedded in a model reply
type Directive struct {
	Search   string `json:"search"`
	MinPrice int    `json:"minPrice"`
	MaxPrice int    `json:"maxPrice"`
}

func (d Directive) String() string {
	return fmt.Sprintf("%s|%d|%d", d.Search, d.MinPrice, d.MaxPrice)
}

// Product is a catalog item as served to shoppers
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags,omitempty"`
	Colors      []string  `json:"colors,omitempty"`
	Style       string    `json:"style,omitempty"`
	InStock     bool      `json:"inStock"`
	Quantity    int       `json:"quantity"`
	ImageURL    string    `json:"image,omitempty"`
	URL         string    `json:"url,omitempty"`
	Handle      string    `json:"handle,omitempty"`
	SyncedAt    time.Time `json:"syncedAt,omitempty"`
}

// Error codes
const (
	ErrorInvalidRequest = "INVALID_REQUEST"
	ErrorInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the envelope transports send when a request is rejected
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Session string `json:"sessionId,omitempty"`
}

// ValidationError is returned when a request is rejected before entering a turn
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is required", e.Field)
}
