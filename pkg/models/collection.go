package models

import "time"

// CollectionEntry marks a card as owned by a user in the main collection.
// (user_id, card_id) is unique; rows are never updated.
type CollectionEntry struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	CardID      string    `json:"card_id" db:"card_id"`
	CollectedAt time.Time `json:"collected_at" db:"collected_at"`
}

// GameCollectionEntry has the same shape as CollectionEntry but lives in the
// booster-pack game table so game progress never touches the real collection.
type GameCollectionEntry CollectionEntry

// CollectionCount is returned by count endpoints.
type CollectionCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}
