package types

import "time"

// ListingType distinguishes lost-item reports from found-item reports.
type ListingType string

const (
	ListingLost  ListingType = "LOST"
	ListingFound ListingType = "FOUND"
)

// Valid reports whether the listing type is one of the known values.
func (t ListingType) Valid() bool {
	switch t {
	case ListingLost, ListingFound:
		return true
	}
	return false
}

// ListingStatus is a listing's lifecycle state. REMOVED listings were taken
// down by moderation and stay invisible to public queries.
type ListingStatus string

const (
	ListingOpen     ListingStatus = "OPEN"
	ListingResolved ListingStatus = "RESOLVED"
	ListingRemoved  ListingStatus = "REMOVED"
)

// Listing is a lost or found item posted on the marketplace.
type Listing struct {
	// ID is the unique identifier of the listing.
	ID int `json:"id" db:"id"`

	// OwnerID references the user who posted the listing.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// Type records whether the item was lost or found.
	Type ListingType `json:"type" db:"type"`

	// Title is the short headline for the item.
	Title string `json:"title" db:"title"`

	// Description holds the free-form item details.
	Description string `json:"description" db:"description"`

	// Category is a free-form grouping label (e.g. "electronics").
	Category string `json:"category" db:"category"`

	// Status is the listing lifecycle state.
	Status ListingStatus `json:"status" db:"status"`

	// Latitude and Longitude locate where the item was lost or found.
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`

	// RewardCents is the offered reward in the smallest currency unit.
	RewardCents int64 `json:"reward_cents" db:"reward_cents"`

	// ImageKeys are the object storage keys of the listing's images.
	ImageKeys []string `json:"image_keys,omitempty"`

	// DistanceKM is populated only by radius searches.
	DistanceKM float64 `json:"distance_km,omitempty"`

	// CreatedAt is the timestamp when the listing was posted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the listing.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
