package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/restaurant_backend/models"
)

func TestFormatOrderReference(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "ORD00001"},
		{42, "ORD00042"},
		{99999, "ORD99999"},
	}
	for _, tc := range cases {
		if got := models.FormatOrderReference(tc.n); got != tc.want {
			t.Fatalf("FormatOrderReference(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestIsOrderReference(t *testing.T) {
	valid := []string{"ORD00001", "ORD99999", "ORD01234"}
	for _, s := range valid {
		if !models.IsOrderReference(s) {
			t.Fatalf("expected %q to be a valid reference", s)
		}
	}

	invalid := []string{
		"",
		"ord00001",
		"ORD0001",
		"ORD000001",
		"ORD00001X",
		"XORD00001",
		"my takeaway order",
		"ORD-00001",
	}
	for _, s := range invalid {
		if models.IsOrderReference(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}
