package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid input, including untrimmed whitespace, falls back
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow falls back
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		name     string
		page     string
		size     string
		wantPage int
		wantSize int
	}{
		{"defaults when empty", "", "", DefaultPage, DefaultPageSize},
		{"passes valid values", "3", "50", 3, 50},
		{"page floor", "0", "10", 1, 10},
		{"negative page", "-2", "10", 1, 10},
		{"size floor", "2", "0", 2, 1},
		{"size cap", "2", "5000", 2, MaxPageSize},
		{"garbage falls back", "abc", "xyz", DefaultPage, DefaultPageSize},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, size := ClampPage(tc.page, tc.size)
			if page != tc.wantPage || size != tc.wantSize {
				t.Fatalf("ClampPage(%q, %q) = (%d, %d); want (%d, %d)",
					tc.page, tc.size, page, size, tc.wantPage, tc.wantSize)
			}
		})
	}
}
