package domain

import "time"

type AttemptKind string

const (
	AttemptProvider    AttemptKind = "provider"
	AttemptInstitution AttemptKind = "institution"
	AttemptSignOut     AttemptKind = "signout"
)

// AuthAttempt is an append-only audit record. Rows are never mutated.
type AuthAttempt struct {
	Identifier    string      `bson:"identifier"`
	Kind          AttemptKind `bson:"kind"`
	InstitutionID string      `bson:"institution_id,omitempty"`
	Success       bool        `bson:"success"`
	ErrorMessage  string      `bson:"error_message,omitempty"`
	CreatedAt     time.Time   `bson:"created_at"`
}
