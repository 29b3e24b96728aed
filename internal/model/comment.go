package model

import "time"

// Comment mirrors the `comments` table.  PostID references posts.id.
type Comment struct {
    ID        uint64    `json:"id"`
    Content   string    `json:"content"`
    PostID    uint64    `json:"post_id"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}
