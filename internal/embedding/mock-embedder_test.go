package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "goroutines communicate over channels")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "goroutines communicate over channels")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(64)
	emb, err := e.Embed(context.Background(), "some ordinary text")
	if err != nil {
		t.Fatal(err)
	}
	norm := math.Sqrt(dot(emb, emb))
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestMockEmbedder_EmptyTextZeroVector(t *testing.T) {
	e := NewMockEmbedder(64)
	emb, err := e.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range emb {
		if v != 0 {
			t.Fatalf("expected zero vector, got %f at %d", v, i)
		}
	}
}

func TestMockEmbedder_SharedWordsScoreHigher(t *testing.T) {
	e := NewMockEmbedder(384)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "python decorators")
	related, _ := e.Embed(ctx, "decorators wrap python functions")
	unrelated, _ := e.Embed(ctx, "kubernetes cluster networking overlay")

	if dot(query, related) <= dot(query, unrelated) {
		t.Errorf("related score %f should exceed unrelated %f",
			dot(query, related), dot(query, unrelated))
	}
}

func TestMockEmbedder_CaseInsensitive(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "Python Decorators")
	b, _ := e.Embed(ctx, "python decorators")
	if math.Abs(dot(a, b)-1.0) > 1e-5 {
		t.Errorf("case variants should produce identical vectors, dot = %f", dot(a, b))
	}
}

func TestMockEmbedder_PunctuationStripped(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "how do I call a function?")
	b, _ := e.Embed(ctx, "how do I call a function")
	if math.Abs(dot(a, b)-1.0) > 1e-5 {
		t.Errorf("trailing punctuation should not change the vector, dot = %f", dot(a, b))
	}
}

func TestMockEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	single, _ := e.Embed(ctx, "hello")
	batch, err := e.EmbedBatch(ctx, []string{"hello", "world"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	for i := range single {
		if batch[0][i] != single[i] {
			t.Fatal("batch embedding differs from single embedding")
		}
	}
}
