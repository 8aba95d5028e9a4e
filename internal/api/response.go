package api

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
)

// WriteJSON marshals v as JSON and writes it to w with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// Success is the envelope for successful admin responses.
type Success struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteSuccess writes a 200 success envelope.
func WriteSuccess(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Success{Status: "success", Message: message, Data: data})
}

// Paging represents cursor-based pagination info.
type Paging struct {
	Next *PagingNext `json:"next,omitempty"`
}

// PagingNext holds the cursor for the next page.
type PagingNext struct {
	After string `json:"after"`
}

// CollectionResponse is a paginated list response.
type CollectionResponse[T any] struct {
	Results []T     `json:"results"`
	Paging  *Paging `json:"paging,omitempty"`
}

// NewCollection builds a CollectionResponse, adding paging when more results
// follow.
func NewCollection[T any](results []T, hasMore bool, after string) CollectionResponse[T] {
	if results == nil {
		results = []T{}
	}
	c := CollectionResponse[T]{Results: results}
	if hasMore {
		c.Paging = &Paging{Next: &PagingNext{After: after}}
	}
	return c
}

// DecodeJSON decodes the request body into v. An empty body leaves v
// unchanged.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
