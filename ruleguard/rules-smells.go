// Package gorules holds project lint rules for gocritic's ruleguard checker.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards in a row with the same return can be merged with ||.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

// contextual flags outbound calls that would ignore the per-strategy deadline.
func contextual(m dsl.Matcher) {
	m.Match(`http.NewRequest($method, $url, $body)`).
		Report(`strategies must honour the caller deadline; use http.NewRequestWithContext`).
		Suggest(`http.NewRequestWithContext(ctx, $method, $url, $body)`)

	m.Match(`http.Get($url)`, `http.Post($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report(`package-level http helpers carry no context or timeout`)

	m.Match(`context.Background()`).
		Where(m.File().PkgPath.Matches(`/domain/solver`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`solver code should derive contexts from the caller`)
}

// logging keeps diagnostics on the structured logger.
func logging(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`use the injected *zap.Logger instead of printing`)
}
