package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"     json:"id"`
	Email           string             `bson:"email"             json:"email"`
	DisplayName     string             `bson:"display_name"      json:"display_name"`
	AvatarURL       string             `bson:"avatar_url"        json:"avatar_url"`
	ProviderID      string             `bson:"provider_id"       json:"provider_id"` // identity provider subject (Google sub)
	InstitutionID   string             `bson:"institution_id,omitempty" json:"institution_id,omitempty"`
	IsSetupComplete bool               `bson:"is_setup_complete" json:"is_setup_complete"`
	CreatedAt       time.Time          `bson:"created_at"        json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"        json:"updated_at"`
}

// ProviderProfile is what the identity-provider callback hands to the gate.
type ProviderProfile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}
