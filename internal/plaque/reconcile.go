// Package plaque builds the view model served to clients: catalog plaques
// joined with their visit records, plus filtering and progress summaries.
package plaque

import (
	"time"

	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/visit"
)

// Enriched is a catalog plaque with its visit state attached.
// It is derived on every ledger change and never persisted.
type Enriched struct {
	catalog.Plaque
	Visited    bool       `json:"visited"`
	ImageURL   *string    `json:"image_url"`
	VisitDate  *time.Time `json:"visit_date"`
	UploadedBy *string    `json:"uploaded_by"`
	Notes      *string    `json:"notes"`
}

// Reconcile joins the catalog with the visit records.
//
// The result has exactly one entry per catalog plaque, in catalog order.
// Visits for plaques not in the catalog are dropped. When several visits
// reference the same plaque, the one with the latest visit date wins; on an
// equal date the first one seen is kept.
func Reconcile(plaques []catalog.Plaque, visits []visit.Record) []Enriched {
	latest := make(map[int]*visit.Record, len(visits))
	for i := range visits {
		v := &visits[i]
		if cur, ok := latest[v.PlaqueID]; !ok || v.VisitDate.After(cur.VisitDate) {
			latest[v.PlaqueID] = v
		}
	}

	out := make([]Enriched, len(plaques))
	for i, p := range plaques {
		out[i] = Enriched{Plaque: p}
		v, ok := latest[p.ID]
		if !ok {
			continue
		}

		out[i].Visited = true
		visitDate := v.VisitDate
		uploadedBy := v.UploadedBy
		out[i].VisitDate = &visitDate
		out[i].UploadedBy = &uploadedBy
		if v.ImageURL != nil {
			url := *v.ImageURL
			out[i].ImageURL = &url
		}
		if v.Notes != nil {
			notes := *v.Notes
			out[i].Notes = &notes
		}
	}
	return out
}
