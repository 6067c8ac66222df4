package embedding

import (
	"context"
	"testing"
)

// countingEmbedder counts Embed calls so cache hits are observable.
type countingEmbedder struct {
	*MockEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.MockEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(16)}
	cached, err := NewCachedEmbedder(inner, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Embed(ctx, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	cached.Wait()

	second, err := cached.Embed(ctx, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
}

func TestCachedEmbedder_DistinctTextsEmbedSeparately(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(16)}
	cached, err := NewCachedEmbedder(inner, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	ctx := context.Background()
	if _, err := cached.Embed(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Embed(ctx, "second"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestCachedEmbedder_BatchUsesCache(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(16)}
	cached, err := NewCachedEmbedder(inner, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	ctx := context.Background()
	if _, err := cached.Embed(ctx, "repeat"); err != nil {
		t.Fatal(err)
	}
	cached.Wait()

	out, err := cached.EmbedBatch(ctx, []string{"repeat", "fresh"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("batch size = %d, want 2", len(out))
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2 (one hit, one miss)", inner.calls)
	}
}
