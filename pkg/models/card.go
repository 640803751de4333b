package models

// CardSet is a named, dated group of cards with a fixed total count.
type CardSet struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	ReleaseDate string `json:"release_date,omitempty" db:"release_date"` // YYYY-MM-DD as stored
	TotalCards  int    `json:"total_cards" db:"total_cards"`
	ImageURL    string `json:"image_url,omitempty" db:"image_url"`
	Description string `json:"description,omitempty" db:"description"`
	Series      string `json:"series,omitempty" db:"series"`
}

// Card is a single catalog card. SetID references CardSet.ID.
type Card struct {
	ID        string `json:"id" db:"id"`
	SetID     string `json:"set_id" db:"set_id"`
	Name      string `json:"name" db:"name"`
	Number    string `json:"number" db:"number"`
	Rarity    string `json:"rarity,omitempty" db:"rarity"`
	Type      string `json:"type,omitempty" db:"type"`
	HP        int    `json:"hp,omitempty" db:"hp"`
	Artist    string `json:"artist,omitempty" db:"artist"`
	ImageURL  string `json:"image_url,omitempty" db:"image_url"`
	Supertype string `json:"supertype,omitempty" db:"supertype"`
}

// CardWithCollectionStatus is a Card annotated with ownership at read time.
// It is never persisted.
type CardWithCollectionStatus struct {
	Card
	Owned bool `json:"owned"`
}
