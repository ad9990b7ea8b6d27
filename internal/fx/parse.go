package fx

import (
	"regexp"
	"sort"
	"strings"

	"quotegateway/internal/fieldscan"
)

var (
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	rateRe    = regexp.MustCompile(`[0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]+)?`)
	percentRe = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s*%`)
	changeRe  = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s*원`)
)

// anchors are keywords whose proximity to a numeric token raises its
// score as a rate candidate.
var anchors = []string{"USD", "KRW", "원", "매매기준율", "전일대비"}

const anchorWindow = 80

type parsedPage struct {
	rate           *float64
	change         *float64
	changePercent  *float64
	candidateCount int
}

// parseRatePage strips tags and scans the plain text for the most
// plausible rate: +3 for a value in the 500..5000 band, +2 per anchor
// keyword within an 80-character window around the token, ties broken by
// the larger value. The percent and won-denominated changes are matched
// independently by position-agnostic first-match passes.
func parseRatePage(body string) parsedPage {
	plain := tagRe.ReplaceAllString(body, " ")

	type candidate struct {
		value float64
		pos   int
	}
	var candidates []candidate
	for _, loc := range rateRe.FindAllStringIndex(plain, -1) {
		value := fieldscan.Number(plain[loc[0]:loc[1]])
		if value == nil {
			continue
		}
		candidates = append(candidates, candidate{value: *value, pos: loc[0]})
	}

	page := parsedPage{candidateCount: len(candidates)}
	if len(candidates) == 0 {
		return page
	}

	type scored struct {
		score int
		value float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := 0
		if c.value >= 500 && c.value <= 5000 {
			score += 3
		}
		windowStart := max(0, c.pos-anchorWindow)
		windowEnd := min(len(plain), c.pos+anchorWindow)
		window := plain[windowStart:windowEnd]
		for _, anchor := range anchors {
			if strings.Contains(window, anchor) {
				score += 2
			}
		}
		ranked = append(ranked, scored{score: score, value: c.value})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].value > ranked[j].value
	})
	rate := ranked[0].value
	page.rate = &rate

	if m := percentRe.FindStringSubmatch(plain); m != nil {
		page.changePercent = fieldscan.Number(m[1])
	}
	if m := changeRe.FindStringSubmatch(plain); m != nil {
		page.change = fieldscan.Number(m[1])
	}
	return page
}
