package conversation

import "testing"

func TestIsOptOut(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"stop", true},
		{"STOP", true},
		{"  Stop  ", true},
		{"unsubscribe", true},
		{"cancel", true},
		{"quit", true},
		{"please stop texting me", false},
		{"can I cancel my appointment?", false},
		{"", false},
		{"stopp", false},
	}
	for _, tc := range cases {
		if got := IsOptOut(tc.body); got != tc.want {
			t.Errorf("IsOptOut(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}
