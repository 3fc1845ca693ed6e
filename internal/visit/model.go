// Package visit provides the visit ledger and the upload/delete workflow that
// records a photo visit against a catalog plaque.
package visit

import (
	"time"
)

// Record is a single visit row in the ledger.
// ImageURL is nil until the photo upload has completed; Notes is optional.
type Record struct {
	ID         int64     `json:"id"`
	PlaqueID   int       `json:"plaque_id"`
	ImageURL   *string   `json:"image_url,omitempty"`
	ImagePath  string    `json:"-"` // Object store key, used to remove the photo
	UploadedBy string    `json:"uploaded_by"`
	VisitDate  time.Time `json:"visit_date"`
	Notes      *string   `json:"notes,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.ImageURL != nil {
		url := *r.ImageURL
		c.ImageURL = &url
	}
	if r.Notes != nil {
		notes := *r.Notes
		c.Notes = &notes
	}
	return &c
}
