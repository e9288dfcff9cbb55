package summarize

import "regexp"

var wordExpr = regexp.MustCompile(`\w+`)

const readingSpeedWPM = 225

// EstimateReadingMinutes estimates reading time for the given text,
// rounded to the nearest half minute.
func EstimateReadingMinutes(text string) float64 {
	words := len(wordExpr.FindAllString(text, -1))
	minutes := float64(words) / readingSpeedWPM
	return float64(int(minutes*2+0.5)) / 2
}
