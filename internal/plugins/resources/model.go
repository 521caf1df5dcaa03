// Package resources serves the generic data and names endpoints. They hold
// no state of their own: the data routes sit behind the auth gate and use
// only the caller's Identity, the names routes are public and static.
package resources

import "time"

// CreateDataRequest is the body of POST /api/data.
type CreateDataRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Data is the echo of a created item. Nothing is persisted.
type Data struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Name is one entry of the static names listing.
type Name struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

type createDataResponse struct {
	Message string `json:"message"`
	Data    Data   `json:"data"`
}

type deleteDataResponse struct {
	Message   string `json:"message"`
	DeletedID string `json:"deletedId"`
}

// staticNames is the fixed listing returned by GET /names.
var staticNames = []Name{
	{ID: 1, Name: "John"},
	{ID: 2, Name: "Jane"},
	{ID: 3, Name: "Jim"},
}
