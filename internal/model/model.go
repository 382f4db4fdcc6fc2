// Package model holds the domain entities shared across the Persistence
// Gateway, Coordinator, Processing Worker client, and Promotion Engine.
package model

import "time"

// EmbeddingDim is the process-wide embedding vector length (§3).
const EmbeddingDim = 384

// TipStatus is the lifecycle state of a Tip.
type TipStatus string

const (
	TipPending    TipStatus = "pending"
	TipProcessing TipStatus = "processing"
	TipProcessed  TipStatus = "processed"
	TipFailed     TipStatus = "failed"
)

// Location is a traveler destination tips are submitted against.
type Location struct {
	ID      int64
	Name    string
	Country string
	Lat     *float64
	Lon     *float64
}

// Tip is a short traveler observation tied to a Location.
type Tip struct {
	ID               int64
	LocationID       int64
	RawText          string
	DetectedLanguage *string
	TranslatedText   *string
	Status           TipStatus
	SubmittedAt      time.Time
	ProcessedAt      *time.Time
}

// Embedding is the 384-dim vector representation of a Tip's translation.
type Embedding struct {
	ID        int64
	TipID     int64
	Vector    []float32
	CreatedAt time.Time
}

// Promotion is a derived consensus-tip record for a Location.
type Promotion struct {
	ID              int64
	LocationID      int64
	TipText         string
	MentionCount    int
	SimilarityScore float64
	PromotedAt      time.Time
}

// ProcessedTip is the shape list_processed returns: just enough to cluster.
type ProcessedTip struct {
	TipID          int64
	TranslatedText string
	Vector         []float32
}
