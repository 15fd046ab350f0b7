package runtime

import "testing"

func TestMappingValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		m       Mapping
		wantErr bool
	}{
		{"single rank", Mapping{WorldSize: 1, GPUsPerNode: 1}, false},
		{"full topology", Mapping{WorldSize: 8, Rank: 5, GPUsPerNode: 4, TPSize: 4, PPSize: 2}, false},
		{"split untracked", Mapping{WorldSize: 4, Rank: 3, GPUsPerNode: 4}, false},
		{"zero world", Mapping{}, true},
		{"rank at world", Mapping{WorldSize: 4, Rank: 4, GPUsPerNode: 4}, true},
		{"negative rank", Mapping{WorldSize: 4, Rank: -1, GPUsPerNode: 4}, true},
		{"zero gpus per node", Mapping{WorldSize: 4, Rank: 0}, true},
		{"half a split", Mapping{WorldSize: 4, Rank: 0, GPUsPerNode: 4, TPSize: 2}, true},
		{"split product mismatch", Mapping{WorldSize: 8, Rank: 0, GPUsPerNode: 8, TPSize: 2, PPSize: 2}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.m.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate(%+v): expected error, got none", tc.m)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate(%+v): unexpected error: %v", tc.m, err)
			}
		})
	}
}

func TestMappingLocalIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rank, gpus, want int
	}{
		{5, 4, 1},
		{3, 4, 3},
		{0, 4, 0},
		{4, 4, 0},
		{7, 2, 1},
	}

	for _, tc := range tests {
		m := Mapping{WorldSize: 8, Rank: tc.rank, GPUsPerNode: tc.gpus}
		if got := m.LocalIndex(); got != tc.want {
			t.Errorf("LocalIndex(rank=%d, gpus=%d) = %d, want %d", tc.rank, tc.gpus, got, tc.want)
		}
	}
}

func TestMappingParallelRanks(t *testing.T) {
	t.Parallel()

	m := Mapping{WorldSize: 8, Rank: 5, GPUsPerNode: 4, TPSize: 4, PPSize: 2}
	if got := m.TPRank(); got != 1 {
		t.Errorf("TPRank = %d, want 1", got)
	}
	if got := m.PPRank(); got != 1 {
		t.Errorf("PPRank = %d, want 1", got)
	}

	// No tracked split: the whole world is one tensor-parallel group.
	m = Mapping{WorldSize: 4, Rank: 3, GPUsPerNode: 4}
	if got := m.TPRank(); got != 3 {
		t.Errorf("TPRank = %d, want 3", got)
	}
	if got := m.PPRank(); got != 0 {
		t.Errorf("PPRank = %d, want 0", got)
	}
}
