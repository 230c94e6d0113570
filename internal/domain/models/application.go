package models

import "time"

// Application is a reusable chat template: a provider+model choice with a
// system prompt and parameters that conversations can reference.
type Application struct {
	ID            string                 `json:"id" bson:"_id"`
	UserID        string                 `json:"userId" bson:"userId"`
	Name          string                 `json:"name" bson:"name"`
	Description   string                 `json:"description,omitempty" bson:"description,omitempty"`
	ModelProvider string                 `json:"modelProvider" bson:"modelProvider"`
	ModelName     string                 `json:"modelName" bson:"modelName"`
	ModelParams   map[string]interface{} `json:"modelParams,omitempty" bson:"modelParams,omitempty"`
	SystemPrompt  string                 `json:"systemPrompt,omitempty" bson:"systemPrompt,omitempty"`
	Status        string                 `json:"status" bson:"status"`
	CreatedAt     time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// ApplicationConfig is the cacheable slice of an application that the config
// resolver needs.
type ApplicationConfig struct {
	ModelProvider string                 `json:"modelProvider"`
	ModelName     string                 `json:"modelName"`
	ModelParams   map[string]interface{} `json:"modelParams,omitempty"`
	SystemPrompt  string                 `json:"systemPrompt,omitempty"`
}

// Config returns the resolver-facing view of the application.
func (a *Application) Config() *ApplicationConfig {
	return &ApplicationConfig{
		ModelProvider: a.ModelProvider,
		ModelName:     a.ModelName,
		ModelParams:   a.ModelParams,
		SystemPrompt:  a.SystemPrompt,
	}
}
