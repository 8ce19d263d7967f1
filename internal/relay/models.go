package relay

import "time"

// Document shapes persisted through the store gateway. Field names double as
// filter keys, so they stay stable.

type workspaceDoc struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// channelDoc references its workspace by name, not ownership; cascade logic in
// the directory service keeps the reference resolvable.
type channelDoc struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Workspace   string    `json:"workspace"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// messageDoc is immutable once stored. StoredAt is the server-assigned
// storage timestamp (microseconds) that orders channel history; Date and Time
// remain the client-supplied display strings.
type messageDoc struct {
	ID        string `json:"id,omitempty"`
	Workspace string `json:"workspace"`
	Channel   string `json:"channel"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	StoredAt  int64  `json:"stored_at"`
}

type userDoc struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
