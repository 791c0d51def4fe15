//go:build ruleguard

// Package gorules defines project linter rules run through gocritic's ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the manual Add/Done pattern; background fetches use wg.Go.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext flags background contexts in tests; t.Context() is cancelled
// when the test ends so leaked fetches show up under goleak.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$fn(context.Background(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of context.Background() (Go 1.24+)")
}

// TimeLayoutConstants flags reference-time literals that have named constants.
func TimeLayoutConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime) instead of magic format string`).
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly) instead of magic format string`).
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(`time.Parse("2006-01-02", $s)`).
		Report(`use time.Parse(time.DateOnly, $s) instead of magic format string`).
		Suggest(`time.Parse(time.DateOnly, $s)`)
}

// LoggerStructuredFields flags messages built with fmt.Sprintf; values belong
// in typed fields so the JSON file output stays queryable.
func LoggerStructuredFields(m dsl.Matcher) {
	m.Match(
		`$log.Debug(fmt.Sprintf($*args), $*fields)`,
		`$log.Info(fmt.Sprintf($*args), $*fields)`,
		`$log.Warn(fmt.Sprintf($*args), $*fields)`,
		`$log.Error(fmt.Sprintf($*args), $*fields)`,
	).
		Where(m["log"].Type.Implements("github.com/naturethrive/birdmonitor/internal/logger.Logger")).
		Report("pass values as logger fields instead of formatting them into the message")
}

// BackendRequestsUseContext flags package-level http helpers, which cannot be
// cancelled when a session closes.
func BackendRequestsUseContext(m dsl.Matcher) {
	m.Match(
		`http.Get($url)`,
		`http.Post($url, $ct, $body)`,
		`http.Head($url)`,
	).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use httpclient.Client with a context instead of the package-level http helpers")
}

// RangeOverInteger suggests ranging over an int.
func RangeOverInteger(m dsl.Matcher) {
	m.Match(
		`for $i := 0; $i < $n; $i++ { $*body }`,
	).
		Where(!m["n"].Text.Matches(`.*\.N$`)).
		Report("use for $i := range $n instead of for $i := 0; $i < $n; $i++ (Go 1.22+)").
		Suggest("for $i := range $n { $body }")
}
