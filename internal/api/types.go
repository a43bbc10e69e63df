// ABOUTME: Wire types for the travel assistant HTTP/JSON backend
// ABOUTME: Mirrors the chat, conversation, tts and destination payloads

package api

import (
	"encoding/json"
)

// Language codes accepted by the backend.
const (
	LanguageVietnamese = "vi"
	LanguageEnglish    = "en"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Link is a reference attached to an assistant reply.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

// ChatRequest is the JSON body for POST /chat/.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language"`
}

// ChatResponse is the JSON response from POST /chat/.
// Sources is accepted but never interpreted by the client.
type ChatResponse struct {
	Message           string            `json:"message"`
	ConversationID    string            `json:"conversation_id"`
	FollowUpQuestions []string          `json:"follow_up_questions"`
	Links             []Link            `json:"links"`
	Sources           []json.RawMessage `json:"sources,omitempty"`
}

// ConversationSummary is one entry of GET /conversations/.
type ConversationSummary struct {
	ID           string `json:"conversation_id"`
	Title        string `json:"title"`
	LastMessage  string `json:"last_message"`
	CreatedAt    Time   `json:"created_at"`
	UpdatedAt    Time   `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

// Message is a stored conversation turn as returned by the backend.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp Time   `json:"timestamp,omitempty"`
}

// ConversationDetail is the JSON response from GET /conversations/{id}.
type ConversationDetail struct {
	ID        string    `json:"conversation_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt Time      `json:"created_at"`
	UpdatedAt Time      `json:"updated_at"`
	Language  string    `json:"language"`
}

// Ack is the JSON response from DELETE /conversations/{id}.
type Ack struct {
	Message string `json:"message"`
}

// TTSRequest is the JSON body for POST /tts/.
type TTSRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Destination regions.
const (
	RegionNorth   = "north"
	RegionCentral = "central"
	RegionSouth   = "south"
)

// Destination is a bilingual destination record from GET /destinations/.
type Destination struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	NameEN        string   `json:"name_en"`
	Region        string   `json:"region"`
	Types         []string `json:"type"`
	Description   string   `json:"description"`
	DescriptionEN string   `json:"description_en"`
	ImageURL      string   `json:"image_url"`
	Highlights    []string `json:"highlights"`
	HighlightsEN  []string `json:"highlights_en"`
}

// DestinationFilter holds the optional query parameters for GET /destinations/.
type DestinationFilter struct {
	Region   string
	Type     string
	Language string
}

// HealthStatus is the JSON response from GET /health.
type HealthStatus struct {
	Status string `json:"status"`
	Debug  bool   `json:"debug"`
}

// errorBody is the error envelope the backend uses for non-2xx responses.
type errorBody struct {
	Detail string `json:"detail"`
}
