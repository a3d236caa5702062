package engine

import (
	"context"
	"math"
	"testing"

	"github.com/lazypower/mnemo/internal/store"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"a b c", nil},
		{"well-known fact_42", []string{"well-known", "fact_42"}},
		{"", nil},
		{"...!!!", nil},
	}
	for _, tt := range tests {
		got := tokenize(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	vec := []float64{3, 4}
	normalize(vec)
	if math.Abs(vec[0]-0.6) > 1e-9 || math.Abs(vec[1]-0.8) > 1e-9 {
		t.Errorf("normalized = %v, want [0.6 0.8]", vec)
	}

	zero := []float64{0, 0, 0}
	normalize(zero)
	for _, v := range zero {
		if v != 0 {
			t.Errorf("zero vector changed by normalize: %v", zero)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1.0},
		{"mismatched dims", []float64{1, 2}, []float64{1, 2, 3}, 0.0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0.0},
	}
	for _, tt := range tests {
		if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: similarity = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTFIDFEmbedder(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	seed := []string{
		"loves hiking in the mountains every weekend",
		"planning a hiking trip with friends next month",
		"allergic to shellfish and most tree nuts",
		"started a new job at the hospital downtown",
	}
	for _, content := range seed {
		m := &store.Memory{Owner: "u1", Content: content, Categories: []string{"fact"}}
		if err := db.CreateMemory(m); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	emb, err := NewTFIDFEmbedder(db, 512)
	if err != nil {
		t.Fatalf("NewTFIDFEmbedder: %v", err)
	}
	if emb.Dimensions() <= 0 {
		t.Fatalf("dims = %d, want > 0", emb.Dimensions())
	}

	ctx := context.Background()
	hiking1, _ := emb.Embed(ctx, "hiking in the mountains")
	hiking2, _ := emb.Embed(ctx, "a hiking trip in the mountains")
	allergy, _ := emb.Embed(ctx, "allergic to shellfish")

	near := CosineSimilarity(hiking1, hiking2)
	far := CosineSimilarity(hiking1, allergy)
	if near <= far {
		t.Errorf("related similarity %v should exceed unrelated %v", near, far)
	}

	// Embeddings come back unit length.
	var sum float64
	for _, v := range hiking1 {
		sum += v * v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("embedding norm squared = %v, want 1.0", sum)
	}
}

func TestTFIDFEmbedderEmptyCorpus(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	emb, err := NewTFIDFEmbedder(db, 512)
	if err != nil {
		t.Fatalf("NewTFIDFEmbedder on empty store: %v", err)
	}
	if emb.Dimensions() < 1 {
		t.Errorf("dims = %d, want at least 1", emb.Dimensions())
	}

	vec, err := emb.Embed(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != emb.Dimensions() {
		t.Errorf("vector length = %d, want %d", len(vec), emb.Dimensions())
	}
}
