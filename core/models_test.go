package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "Inception",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "A thief who steals corporate secrets through the use of dream-sharing technology",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("Inception")
	id2 := IDFromContent("Interstellar")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
	if id1.String() == id2.String() {
		t.Errorf("ID.String() collided for different IDs")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "movies", want: KindMovies},
		{input: " Series ", want: KindSeries},
		{input: "ANIME", want: KindAnime},
		{input: "books", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKind(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestItem_CombinedText(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{
			name: "all fields",
			item: Item{Title: "Inception", Description: "Dreams within dreams", Genres: "Sci-Fi"},
			want: "Inception . Dreams within dreams . Sci-Fi",
		},
		{
			name: "title only",
			item: Item{Title: "Inception"},
			want: "Inception .  . ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.CombinedText(); got != tt.want {
				t.Errorf("CombinedText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalog_Signals(t *testing.T) {
	c := &Catalog{Kind: KindMovies, Items: []Item{{Title: "a"}, {Title: "b", Rating: Float(7)}}}
	if !c.HasRatings() {
		t.Error("expected HasRatings")
	}
	if c.HasPopularity() {
		t.Error("did not expect HasPopularity")
	}

	var nilCatalog *Catalog
	if nilCatalog.Len() != 0 {
		t.Error("nil catalog should have zero length")
	}
}
