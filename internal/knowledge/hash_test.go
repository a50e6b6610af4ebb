package knowledge

import (
	"encoding/hex"
	"testing"
)

func TestComputeContentHash_Deterministic(t *testing.T) {
	first := ComputeContentHash("Alérgenos", "Contiene frutos secos")
	second := ComputeContentHash("Alérgenos", "Contiene frutos secos")

	if first != second {
		t.Errorf("hash not deterministic: %q != %q", first, second)
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}
	if _, err := hex.DecodeString(first); err != nil {
		t.Errorf("hash is not valid hex: %v", err)
	}
}

func TestComputeContentHash_Normalization(t *testing.T) {
	tests := []struct {
		name                 string
		titleA, contentA     string
		titleB, contentB     string
		wantEqual            bool
	}{
		{
			name:   "case and whitespace insensitive",
			titleA: "Foo", contentA: "bar",
			titleB: " foo ", contentB: "BAR ",
			wantEqual: true,
		},
		{
			name:   "identical inputs",
			titleA: "Horario", contentA: "Abrimos a las 9",
			titleB: "Horario", contentB: "Abrimos a las 9",
			wantEqual: true,
		},
		{
			name:   "different content",
			titleA: "Horario", contentA: "Abrimos a las 9",
			titleB: "Horario", contentB: "Abrimos a las 10",
			wantEqual: false,
		},
		{
			name:   "title and content not interchangeable",
			titleA: "a", contentA: "b",
			titleB: "b", contentB: "a",
			wantEqual: false,
		},
		{
			name:   "interior whitespace is significant",
			titleA: "dos palabras", contentA: "x",
			titleB: "dospalabras", contentB: "x",
			wantEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashA := ComputeContentHash(tt.titleA, tt.contentA)
			hashB := ComputeContentHash(tt.titleB, tt.contentB)
			if (hashA == hashB) != tt.wantEqual {
				t.Errorf("hash equality = %v, want %v (%q vs %q)",
					hashA == hashB, tt.wantEqual, hashA, hashB)
			}
		})
	}
}

func TestComputeContentHash_EmptyInputs(t *testing.T) {
	// Empty strings normalize to empty and must still hash without error.
	got := ComputeContentHash("", "")
	if len(got) != 64 {
		t.Errorf("hash of empty inputs has length %d, want 64", len(got))
	}
	// "   " trims to "" and must collide with the fully-empty hash.
	if ComputeContentHash("   ", "") != got {
		t.Error("whitespace-only title should hash like empty title")
	}
}
