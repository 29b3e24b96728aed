package model

import "time"

// Post mirrors the `posts` table.  Posts have no endpoints yet; the table
// exists so comments have an owner to reference.
type Post struct {
    ID          uint64    `json:"id"`
    Title       string    `json:"title"`
    Description string    `json:"description"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}
