package trend

import "testing"

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		raw  string
		want Category
	}{
		{"Game", CategoryGame},
		{"ゲーム", CategoryGame},
		{"  Politics ", CategoryPolicy},
		{"映画", CategoryMovie},
		{"エンタメ", CategoryEntertainment},
		{"technology", CategoryTech},
		{"経済", CategoryBusiness},
		{"something-unknown", CategoryGeneral},
		{"", CategoryGeneral},
	}
	for _, tc := range cases {
		if got := NormalizeCategory(tc.raw); got != tc.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestIsHard(t *testing.T) {
	if !IsHard(CategoryPolicy) {
		t.Error("policy should be hard")
	}
	for _, c := range []Category{CategoryBusiness, CategoryTech, CategoryGame, CategoryGeneral} {
		if IsHard(c) {
			t.Errorf("%q should not be hard", c)
		}
	}
}

func TestIsEntertainment(t *testing.T) {
	for _, c := range []Category{CategoryEntertainment, CategoryGame, CategoryMovie, CategoryAnime, CategoryCulture} {
		if !IsEntertainment(c) {
			t.Errorf("%q should be entertainment", c)
		}
	}
	for _, c := range []Category{CategoryPolicy, CategoryBusiness, CategoryTech, CategoryGeneral} {
		if IsEntertainment(c) {
			t.Errorf("%q should not be entertainment", c)
		}
	}
}
