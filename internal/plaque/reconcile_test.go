package plaque

import (
	"testing"
	"time"

	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/visit"
)

func strPtr(s string) *string { return &s }

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testCatalog() []catalog.Plaque {
	return []catalog.Plaque{
		{ID: 1, Title: "Abbey House", Location: "Kirkstall", CityCentre: false},
		{ID: 2, Title: "Town Hall", Location: "City Square", CityCentre: true},
		{ID: 3, Title: "Corn Exchange", Location: "Call Lane", CityCentre: true},
	}
}

func TestReconcile_PreservesCatalogOrderAndLength(t *testing.T) {
	plaques := testCatalog()

	ledgers := map[string][]visit.Record{
		"empty ledger": nil,
		"reverse order": {
			{PlaqueID: 3, VisitDate: date("2024-03-01")},
			{PlaqueID: 1, VisitDate: date("2024-01-01")},
		},
		"orphans and duplicates": {
			{PlaqueID: 99, VisitDate: date("2024-05-01")},
			{PlaqueID: 2, VisitDate: date("2024-02-01")},
			{PlaqueID: 2, VisitDate: date("2024-04-01")},
			{PlaqueID: -1, VisitDate: date("2024-04-01")},
		},
	}

	for name, visits := range ledgers {
		t.Run(name, func(t *testing.T) {
			got := Reconcile(plaques, visits)
			if len(got) != len(plaques) {
				t.Fatalf("expected %d plaques, got %d", len(plaques), len(got))
			}
			for i := range plaques {
				if got[i].ID != plaques[i].ID {
					t.Errorf("position %d: expected id %d, got %d", i, plaques[i].ID, got[i].ID)
				}
			}
		})
	}
}

func TestReconcile_UnvisitedHasNullFields(t *testing.T) {
	got := Reconcile(testCatalog(), []visit.Record{
		{PlaqueID: 2, ImageURL: strPtr("x.jpg"), UploadedBy: "user-1", VisitDate: date("2024-01-01")},
	})

	p := got[0]
	if p.Visited {
		t.Error("plaque 1 should be unvisited")
	}
	if p.ImageURL != nil || p.VisitDate != nil || p.UploadedBy != nil || p.Notes != nil {
		t.Errorf("expected all visit fields nil, got %+v", p)
	}
}

func TestReconcile_CopiesSingleVisitVerbatim(t *testing.T) {
	visitDate := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)
	got := Reconcile(testCatalog(), []visit.Record{
		{
			PlaqueID:   3,
			ImageURL:   strPtr("https://cdn.example.com/visits/3/a.jpg"),
			UploadedBy: "user-7",
			VisitDate:  visitDate,
			Notes:      strPtr("Sunny afternoon"),
		},
	})

	p := got[2]
	if !p.Visited {
		t.Fatal("plaque 3 should be visited")
	}
	if p.ImageURL == nil || *p.ImageURL != "https://cdn.example.com/visits/3/a.jpg" {
		t.Errorf("unexpected image url: %v", p.ImageURL)
	}
	if p.UploadedBy == nil || *p.UploadedBy != "user-7" {
		t.Errorf("unexpected uploader: %v", p.UploadedBy)
	}
	if p.VisitDate == nil || !p.VisitDate.Equal(visitDate) {
		t.Errorf("unexpected visit date: %v", p.VisitDate)
	}
	if p.Notes == nil || *p.Notes != "Sunny afternoon" {
		t.Errorf("unexpected notes: %v", p.Notes)
	}
	if p.Title != "Corn Exchange" || !p.CityCentre {
		t.Errorf("catalog fields not carried over: %+v", p.Plaque)
	}
}

func TestReconcile_LatestVisitWins(t *testing.T) {
	tests := []struct {
		name   string
		visits []visit.Record
		want   string
	}{
		{
			name: "newest first",
			visits: []visit.Record{
				{PlaqueID: 1, ImageURL: strPtr("new.jpg"), VisitDate: date("2024-05-01")},
				{PlaqueID: 1, ImageURL: strPtr("old.jpg"), VisitDate: date("2024-01-01")},
			},
			want: "new.jpg",
		},
		{
			name: "oldest first",
			visits: []visit.Record{
				{PlaqueID: 1, ImageURL: strPtr("old.jpg"), VisitDate: date("2024-01-01")},
				{PlaqueID: 1, ImageURL: strPtr("new.jpg"), VisitDate: date("2024-05-01")},
			},
			want: "new.jpg",
		},
		{
			name: "equal dates keep first seen",
			visits: []visit.Record{
				{PlaqueID: 1, ImageURL: strPtr("first.jpg"), VisitDate: date("2024-01-01")},
				{PlaqueID: 1, ImageURL: strPtr("second.jpg"), VisitDate: date("2024-01-01")},
			},
			want: "first.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(testCatalog(), tt.visits)
			if got[0].ImageURL == nil || *got[0].ImageURL != tt.want {
				t.Errorf("expected %s, got %v", tt.want, got[0].ImageURL)
			}
		})
	}
}

func TestReconcile_DoesNotAliasInputs(t *testing.T) {
	visits := []visit.Record{
		{PlaqueID: 1, ImageURL: strPtr("a.jpg"), Notes: strPtr("note"), VisitDate: date("2024-01-01")},
	}
	got := Reconcile(testCatalog(), visits)

	*visits[0].ImageURL = "changed.jpg"
	*visits[0].Notes = "changed"
	if *got[0].ImageURL != "a.jpg" || *got[0].Notes != "note" {
		t.Error("enriched plaque shares pointers with the ledger input")
	}
}

func TestReconcile_EmptyCatalog(t *testing.T) {
	got := Reconcile(nil, []visit.Record{{PlaqueID: 1, VisitDate: date("2024-01-01")}})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d plaques", len(got))
	}
}
