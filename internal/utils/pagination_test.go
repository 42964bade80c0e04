package utils

import "testing"

func TestPaginate(t *testing.T) {
	cases := []struct {
		total, page, limit int
		want               Page
	}{
		{5, 1, 2, Page{Start: 0, End: 2, TotalPages: 3, HasMore: true}},
		{5, 2, 2, Page{Start: 2, End: 4, TotalPages: 3, HasMore: true}},
		{5, 3, 2, Page{Start: 4, End: 5, TotalPages: 3, HasMore: false}},
		// past the end -> empty window
		{5, 9, 2, Page{Start: 5, End: 5, TotalPages: 3, HasMore: false}},
		// empty set
		{0, 1, 50, Page{Start: 0, End: 0, TotalPages: 0, HasMore: false}},
		// exact multiple
		{100, 2, 50, Page{Start: 50, End: 100, TotalPages: 2, HasMore: false}},
	}
	for _, tc := range cases {
		if got := Paginate(tc.total, tc.page, tc.limit); got != tc.want {
			t.Fatalf("Paginate(%d, %d, %d) = %+v; want %+v", tc.total, tc.page, tc.limit, got, tc.want)
		}
	}
}
