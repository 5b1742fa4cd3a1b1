package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "trims and collapses", input: "  blue \t\n dream  ", want: "blue dream"},
		{name: "drops control characters", input: "og\x00 kush\x1b", want: "og kush"},
		{name: "cuts on runes", input: "crème brûlée", maxLen: 4, want: "crèm"},
		{name: "no trailing space after cut", input: "sour diesel", maxLen: 5, want: "sour"},
		{name: "unbounded", input: "gelato 41", maxLen: 0, want: "gelato 41"},
		{name: "blank", input: " \t ", maxLen: 10, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeString(tc.input, tc.maxLen); got != tc.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.want)
			}
		})
	}
}
