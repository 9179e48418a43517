package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InstitutionCredential is the stage-2 secret pair. One active row per
// (user, institution); the plaintext password never leaves the vault.
type InstitutionCredential struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          primitive.ObjectID `bson:"user_id"`
	InstitutionID   string             `bson:"institution_id"`
	Username        string             `bson:"username"`
	EncryptedSecret string             `bson:"encrypted_secret"`
	IsVerified      bool               `bson:"is_verified"`
	IsActive        bool               `bson:"is_active"`
	LastVerifiedAt  time.Time          `bson:"last_verified_at"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func (c *InstitutionCredential) Valid() bool {
	return c != nil && c.IsVerified && c.IsActive
}
