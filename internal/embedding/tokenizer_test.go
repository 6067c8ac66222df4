package embedding

import "testing"

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)

	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths = %d %d %d, want 10 each", len(ids), len(attn), len(types))
	}
	if ids[0] != clsTokenID {
		t.Errorf("ids[0] = %d, want CLS %d", ids[0], clsTokenID)
	}
	if ids[3] != sepTokenID {
		t.Errorf("ids[3] = %d, want SEP %d after two words", ids[3], sepTokenID)
	}
	for i := 0; i < 4; i++ {
		if attn[i] != 1 {
			t.Errorf("attention[%d] = %d, want 1", i, attn[i])
		}
	}
	for i := 4; i < 10; i++ {
		if attn[i] != 0 || ids[i] != 0 {
			t.Errorf("position %d should be padding, got id %d mask %d", i, ids[i], attn[i])
		}
	}
}

func TestSimpleTokenizer_TruncatesLongText(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h", 5)

	if len(ids) != 5 {
		t.Fatalf("len(ids) = %d, want 5", len(ids))
	}
	if ids[0] != clsTokenID || ids[4] != sepTokenID {
		t.Errorf("frame tokens misplaced: ids = %v", ids)
	}
	for i := range attn {
		if attn[i] != 1 {
			t.Errorf("attention[%d] = %d, full sequence should be attended", i, attn[i])
		}
	}
}

func TestSimpleTokenizer_TinyMaxTokensFallsBack(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _, _ := tok.Tokenize("hello", 1)
	if len(ids) != defaultSeqLen {
		t.Errorf("len(ids) = %d, want default %d", len(ids), defaultSeqLen)
	}
}

func TestSplitWords(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"  a  b  c  ", 3},
		{"", 0},
		{"one", 1},
		{"tabs\tand\nnewlines too", 4},
	}
	for _, c := range cases {
		if got := SplitWords(c.in); len(got) != c.want {
			t.Errorf("SplitWords(%q) = %v, want %d words", c.in, got, c.want)
		}
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("adjacent strings should hash apart")
	}
}
