package model

import "time"

// Brand identifies the vendor protocol family of a controller.
type Brand string

// BrandCSVUpload marks controllers whose data is ingested from file uploads.
// They have no control capability.
const BrandCSVUpload Brand = "csv_upload"

// IsReadOnly reports whether the brand only supports data ingestion.
func (b Brand) IsReadOnly() bool { return b == BrandCSVUpload }

// Controller is a cloud or locally connected hub that drives devices.
type Controller struct {
	ID                   string `json:"id" yaml:"id"`
	UserID               string `json:"user_id" yaml:"user_id"`
	Name                 string `json:"name" yaml:"name"`
	Brand                Brand  `json:"brand" yaml:"brand"`
	EncryptedCredentials string `json:"-" yaml:"encrypted_credentials"`
	Status               string `json:"status" yaml:"status"`
}

// Room groups controllers at a physical location.
// Latitude and Longitude must both be set for solar triggers.
type Room struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Latitude  *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" yaml:"longitude"`
	Timezone  string   `json:"timezone,omitempty" yaml:"timezone"`
}

// HasLocation reports whether both coordinates are present.
func (r *Room) HasLocation() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}

// Location resolves the room timezone. It falls back to fallback when the
// room is nil, has no timezone, or names an unknown zone.
func (r *Room) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if r == nil || r.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
