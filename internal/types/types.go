package types

import (
	"encoding/json"
	"time"
)

// Achievement is a single dated, described instance of progress toward an activity target.
type Achievement struct {
	ID          string `json:"id"`
	Date        string `json:"date"` // YYYY-MM-DD, no time component
	Description string `json:"description"`
}

// Activity is a catalog definition plus the user's mutable target and recorded achievements.
type Activity struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Target int           `json:"target"`
	Unit   string        `json:"unit"`
	Actual []Achievement `json:"actual"`
}

// RemoteActivity is an activity-like object read from a persisted document.
// Target is nil when the persisted value is absent or not a number.
// Actual is nil when the persisted value is absent or not an array.
type RemoteActivity struct {
	ID     string
	Target *int
	Actual []Achievement
}

// Remote converts a working activity back into reconciliation input.
func (a Activity) Remote() RemoteActivity {
	target := a.Target
	actual := make([]Achievement, len(a.Actual))
	copy(actual, a.Actual)
	return RemoteActivity{ID: a.ID, Target: &target, Actual: actual}
}

// Clone returns a deep copy of the activity.
func (a Activity) Clone() Activity {
	out := a
	out.Actual = make([]Achievement, len(a.Actual))
	copy(out.Actual, a.Actual)
	return out
}

// CloneActivities deep-copies a list of activities.
func CloneActivities(in []Activity) []Activity {
	out := make([]Activity, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// Document is the durable per-user representation.
type Document struct {
	Activities []Activity `json:"activities"`
	UserName   string     `json:"userName"`
}

// Patch is a shallow merge-write. Nil fields are left untouched server-side;
// a non-nil Activities fully replaces the persisted array.
type Patch struct {
	Activities []Activity `json:"activities,omitempty"`
	UserName   *string    `json:"userName,omitempty"`
}

// IsEmpty reports whether the patch names no fields.
func (p Patch) IsEmpty() bool {
	return p.Activities == nil && p.UserName == nil
}

// UserProfile identifies the signed-in user.
type UserProfile struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// DocumentRef addresses one document inside an application namespace.
type DocumentRef struct {
	App string `json:"app"`
	Key string `json:"key"`
}

// String returns the full document path.
func (r DocumentRef) String() string {
	return "artifacts/" + r.App + "/" + r.Key
}

// DocumentSnapshot is the state of a document at a point in time.
type DocumentSnapshot struct {
	Ref       DocumentRef     `json:"ref"`
	Exists    bool            `json:"exists"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// SignInResponse is returned by the identity endpoints.
type SignInResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Anonymous bool      `json:"anonymous"`
}

// RedeemTokenRequest carries an externally issued custom token.
type RedeemTokenRequest struct {
	Token string `json:"token"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Namespaces int    `json:"namespaces"`
}
