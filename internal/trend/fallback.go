package trend

import "fmt"

// fallbackTopics is the hand-authored list used when live data cannot satisfy
// the target composition. Items are cycled in list order; this order is also
// the tie-break when several fallbacks qualify equally.
var fallbackTopics = []Candidate{
	{
		ID:       "fallback-game-weekly",
		Title:    "今週話題の新作ゲームまとめ",
		Summary:  "リリース直後に注目を集めたタイトルと、プレイヤーの反応を軽く振り返ります。",
		Source:   "editorial",
		Category: CategoryGame,
	},
	{
		ID:       "fallback-anime-season",
		Title:    "今期アニメの注目作チェック",
		Summary:  "放送中の作品から話題性の高いエピソードをピックアップします。",
		Source:   "editorial",
		Category: CategoryAnime,
	},
	{
		ID:       "fallback-movie-boxoffice",
		Title:    "週末の映画興行ランキング",
		Summary:  "劇場公開中の作品の動員動向をざっくり紹介します。",
		Source:   "editorial",
		Category: CategoryMovie,
	},
	{
		ID:       "fallback-tech-roundup",
		Title:    "テック界隈の小ネタ総ざらい",
		Summary:  "大きな発表がない日でも拾える技術系の小さな話題集です。",
		Source:   "editorial",
		Category: CategoryTech,
	},
	{
		ID:       "fallback-culture-trend",
		Title:    "SNSで流行中のカルチャートレンド",
		Summary:  "タイムラインで見かける流行りものを一つ深掘りします。",
		Source:   "editorial",
		Category: CategoryCulture,
	},
	{
		ID:       "fallback-ent-chart",
		Title:    "音楽チャートの動きをチェック",
		Summary:  "今週のヒットチャートで動きのあった曲を紹介します。",
		Source:   "editorial",
		Category: CategoryEntertainment,
	},
	{
		ID:       "fallback-business-note",
		Title:    "気になる企業ニュース一言メモ",
		Summary:  "エンタメ業界まわりの企業動向を一つだけ取り上げます。",
		Source:   "editorial",
		Category: CategoryBusiness,
	},
	{
		ID:       "fallback-listener-letter",
		Title:    "リスナーからのおたより紹介",
		Summary:  "最近届いたおたよりの中から一通読み上げます。",
		Source:   "editorial",
		Category: CategoryGeneral,
	},
}

// FallbackTopics returns a copy of the editorial fallback list.
func FallbackTopics() []Candidate {
	out := make([]Candidate, len(fallbackTopics))
	copy(out, fallbackTopics)
	return out
}

// fallbackInstance stamps a unique suffixed id on an injected fallback so
// repeated injections stay distinguishable in audit logs.
func fallbackInstance(base Candidate, n int) Candidate {
	item := base
	item.ID = fmt.Sprintf("%s-%d", base.ID, n)
	item.Fallback = true
	return item
}
