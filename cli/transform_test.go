package cli

import "testing"

func TestOutputPath(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		explicit string
		single   bool
		want     string
	}{
		{"derived suffix", "report.txt", "", true, "report.anon.txt"},
		{"explicit single", "report.txt", "out.txt", true, "out.txt"},
		{"explicit ignored for batch", "report.txt", "out.txt", false, "report.anon.txt"},
		{"no extension", "report", "", true, "report.anon.txt"},
		{"markdown", "notes.md", "", true, "notes.anon.md"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := outputPath(tc.in, tc.explicit, ".anon", tc.single); got != tc.want {
				t.Errorf("outputPath = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseLabelSpecs(t *testing.T) {
	labels, err := parseLabelSpecs([]string{"PERSON=[PERSON]", "LOC=[PLACE]"})
	if err != nil {
		t.Fatalf("parseLabelSpecs failed: %v", err)
	}
	if labels["PERSON"] != "[PERSON]" || labels["LOC"] != "[PLACE]" {
		t.Errorf("labels = %v", labels)
	}

	for _, bad := range []string{"PERSON", "=X", "PERSON=", ""} {
		if _, err := parseLabelSpecs([]string{bad}); err == nil {
			t.Errorf("expected error for spec %q", bad)
		}
	}
}
