package main

import "testing"

func TestBenchRequestShape(t *testing.T) {
	req := benchRequest(3, 8, 64, 7)

	if len(req.InputIDs) != 3 {
		t.Fatalf("batch = %d, want 3", len(req.InputIDs))
	}
	for i, seq := range req.InputIDs {
		if len(seq) != 8 {
			t.Fatalf("sequence %d length = %d, want 8", i, len(seq))
		}
		for j, tok := range seq {
			if tok < 1 {
				t.Fatalf("sequence %d token %d = %d, want >= 1", i, j, tok)
			}
		}
	}
	if req.Sampling.MaxNewTokens != 64 {
		t.Fatalf("max new tokens = %d, want 64", req.Sampling.MaxNewTokens)
	}
	if req.Sampling.Seed != 7 {
		t.Fatalf("seed = %d, want 7", req.Sampling.Seed)
	}
}

func TestBenchRequestDeterministic(t *testing.T) {
	a := benchRequest(2, 4, 16, 42)
	b := benchRequest(2, 4, 16, 42)

	for i := range a.InputIDs {
		for j := range a.InputIDs[i] {
			if a.InputIDs[i][j] != b.InputIDs[i][j] {
				t.Fatalf("prompt diverged at [%d][%d]", i, j)
			}
		}
	}
}

func TestBenchRequestDistinctSequences(t *testing.T) {
	req := benchRequest(2, 4, 16, 42)

	same := true
	for j := range req.InputIDs[0] {
		if req.InputIDs[0][j] != req.InputIDs[1][j] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected batch sequences to differ")
	}
}
