package device

import "testing"

func TestParseMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value string
		want  Mode
	}{
		{"", SelfManaged},
		{"0", SelfManaged},
		{"false", SelfManaged},
		{"no", SelfManaged},
		{"garbage", SelfManaged},
		{"1", ExternallyManaged},
		{"true", ExternallyManaged},
		{"TRUE", ExternallyManaged},
		{"t", ExternallyManaged},
	}
	for _, tc := range cases {
		if got := ParseMode(tc.value); got != tc.want {
			t.Fatalf("ParseMode(%q): got %v want %v", tc.value, got, tc.want)
		}
	}
}

func TestModeString(t *testing.T) {
	t.Parallel()

	if SelfManaged.String() != "self" {
		t.Fatalf("SelfManaged: got %q", SelfManaged.String())
	}
	if ExternallyManaged.String() != "external" {
		t.Fatalf("ExternallyManaged: got %q", ExternallyManaged.String())
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", Auto, false},
		{"sim", Sim, false},
		{" CUDA ", CUDA, false},
		{"Auto", Auto, false},
		{"cpu", "", true},
		{"tpu", "", true},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Normalize(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Normalize(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q): got %q want %q", tc.in, got, tc.want)
		}
	}
}
