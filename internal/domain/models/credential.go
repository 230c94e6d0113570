package models

import "time"

// ModelCredential is a user's stored credential for one provider+model pair.
// The APIKey field holds ciphertext; plaintext is only obtained through an
// explicit decrypt call at resolve time.
type ModelCredential struct {
	ID        string                 `json:"id" bson:"_id"`
	UserID    string                 `json:"userId" bson:"userId"`
	Provider  string                 `json:"provider" bson:"provider"`
	ModelName string                 `json:"modelName" bson:"modelName"`
	APIKey    string                 `json:"-" bson:"apiKey"`
	APIBase   string                 `json:"apiBase,omitempty" bson:"apiBase,omitempty"`
	IsDefault bool                   `json:"isDefault" bson:"isDefault"`
	IsActive  bool                   `json:"isActive" bson:"isActive"`
	Params    map[string]interface{} `json:"params,omitempty" bson:"params,omitempty"`
	CreatedAt time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt" bson:"updatedAt"`
}
