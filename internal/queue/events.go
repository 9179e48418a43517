package queue

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ortaizi/sync-service/internal/domain"
)

// Routing keys on the sync events exchange.
const (
	KeySyncRequested = "sync.requested"
	KeySyncCompleted = "sync.completed"
	KeySyncFailed    = "sync.failed"
)

// SyncRequested is the durable dispatch task the worker consumes. It carries
// no plaintext secret; the worker re-loads the credential from the vault.
type SyncRequested struct {
	JobID         string             `json:"job_id"`
	UserID        primitive.ObjectID `json:"user_id"`
	InstitutionID string             `json:"institution_id"`
}

type SyncCompleted struct {
	JobID  string             `json:"job_id"`
	UserID primitive.ObjectID `json:"user_id"`
	Result domain.SyncResult  `json:"result"`
}

type SyncFailed struct {
	JobID  string             `json:"job_id"`
	UserID primitive.ObjectID `json:"user_id"`
	Reason string             `json:"reason"`
}
