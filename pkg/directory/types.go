package directory

import "time"

// User is a subject known to the directory. The ID is the stable subject
// identifier carried in token sub claims.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Organization is a node in the tenant's organization tree. Path is the
// materialized ancestor chain "/rootId/.../selfId/" and Depth its length,
// kept in sync on writes so ancestor checks are prefix comparisons instead
// of recursive queries.
type Organization struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ParentID  *string   `json:"parentId,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Depth     int       `json:"depth"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// Group is a flat collection of users used as a grant subject
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client is a registered application allowed to call the check API.
// SecretHashes holds current and previous secret digests so secrets can be
// rotated without a hard cutover.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SecretHashes []string  `json:"-"`
	IsEnabled    bool      `json:"isEnabled"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Resource is a protectable asset owned by a client, identified within the
// client by its code.
type Resource struct {
	ID        int64  `json:"id"`
	ClientID  string `json:"clientId"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ParentID  *int64 `json:"parentId,omitempty"`
	IsEnabled bool   `json:"isEnabled"`
	SortOrder int    `json:"sortOrder"`
}

// IsAncestorOf reports whether o is a strict ancestor of other in the
// organization tree. An organization is not its own ancestor.
func (o *Organization) IsAncestorOf(other *Organization) bool {
	if o.ID == other.ID {
		return false
	}
	return len(other.Path) > len(o.Path) && other.Path[:len(o.Path)] == o.Path
}
