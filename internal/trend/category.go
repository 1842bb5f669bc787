package trend

import "strings"

// Category is the canonical topic classification every raw source category is
// mapped onto. The set is closed; anything unmapped becomes CategoryGeneral.
type Category string

const (
	CategoryEntertainment Category = "entertainment"
	CategoryGame          Category = "game"
	CategoryMovie         Category = "movie"
	CategoryAnime         Category = "anime"
	CategoryCulture       Category = "culture"
	CategoryBusiness      Category = "business"
	CategoryTech          Category = "tech"
	CategoryPolicy        Category = "policy"
	CategoryGeneral       Category = "general"
)

var Canonical = []Category{
	CategoryEntertainment,
	CategoryGame,
	CategoryMovie,
	CategoryAnime,
	CategoryCulture,
	CategoryBusiness,
	CategoryTech,
	CategoryPolicy,
	CategoryGeneral,
}

// categoryAliases maps lower-cased raw source categories to canonical ones.
// Japanese aliases cover the feeds we actually ingest.
var categoryAliases = map[string]Category{
	"entertainment": CategoryEntertainment,
	"entame":        CategoryEntertainment,
	"celebrity":     CategoryEntertainment,
	"music":         CategoryEntertainment,
	"エンタメ":          CategoryEntertainment,
	"芸能":            CategoryEntertainment,
	"音楽":            CategoryEntertainment,

	"game":   CategoryGame,
	"games":  CategoryGame,
	"gaming": CategoryGame,
	"ゲーム":    CategoryGame,

	"movie":  CategoryMovie,
	"movies": CategoryMovie,
	"film":   CategoryMovie,
	"cinema": CategoryMovie,
	"映画":     CategoryMovie,

	"anime": CategoryAnime,
	"manga": CategoryAnime,
	"アニメ":   CategoryAnime,
	"漫画":    CategoryAnime,

	"culture": CategoryCulture,
	"art":     CategoryCulture,
	"books":   CategoryCulture,
	"カルチャー":   CategoryCulture,
	"文化":      CategoryCulture,

	"business": CategoryBusiness,
	"economy":  CategoryBusiness,
	"finance":  CategoryBusiness,
	"market":   CategoryBusiness,
	"ビジネス":     CategoryBusiness,
	"経済":       CategoryBusiness,

	"tech":       CategoryTech,
	"technology": CategoryTech,
	"science":    CategoryTech,
	"it":         CategoryTech,
	"ai":         CategoryTech,
	"テック":        CategoryTech,
	"テクノロジー":     CategoryTech,
	"科学":         CategoryTech,

	"policy":   CategoryPolicy,
	"politics": CategoryPolicy,
	"news":     CategoryPolicy,
	"world":    CategoryPolicy,
	"society":  CategoryPolicy,
	"政治":       CategoryPolicy,
	"政策":       CategoryPolicy,
	"社会":       CategoryPolicy,
	"国際":       CategoryPolicy,

	"general": CategoryGeneral,
	"misc":    CategoryGeneral,
	"総合":      CategoryGeneral,
}

// NormalizeCategory maps a free-text source category to its canonical value.
func NormalizeCategory(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryGeneral
}

var entertainmentFamily = map[Category]struct{}{
	CategoryEntertainment: {},
	CategoryGame:          {},
	CategoryMovie:         {},
	CategoryAnime:         {},
	CategoryCulture:       {},
}

// IsEntertainment reports whether the category belongs to the fun/culture
// family that the selection policy guarantees a minimum of.
func IsEntertainment(c Category) bool {
	_, ok := entertainmentFamily[c]
	return ok
}

// IsHard reports whether the category counts against the hard-topic cap.
// Business and tech stories are deliberately neutral: only policy/news/politics
// content is capped.
func IsHard(c Category) bool {
	return c == CategoryPolicy
}
