package aggregate

import (
	"math"
	"slices"

	"github.com/naturethrive/birdmonitor/internal/dataset"
)

// DailyDiversity computes per-day detections, species richness and the
// Shannon index H = -Σ p·ln(p) from the record sequence, where p is each
// species' share of the day's detections. H is rounded to two decimals.
// Days are returned in ascending date order.
func DailyDiversity(records []dataset.DetectionRecord) []dataset.DailyDiversityEntry {
	perDay := make(map[string]map[string]int)
	for _, r := range records {
		day, ok := perDay[r.Date]
		if !ok {
			day = make(map[string]int)
			perDay[r.Date] = day
		}
		day[r.Species] += r.Count
	}

	dates := make([]string, 0, len(perDay))
	for date := range perDay {
		dates = append(dates, date)
	}
	slices.Sort(dates)

	out := make([]dataset.DailyDiversityEntry, 0, len(dates))
	for _, date := range dates {
		total, richness, shannon := diversity(perDay[date])
		out = append(out, dataset.DailyDiversityEntry{
			Date:            date,
			ShannonIndex:    shannon,
			TotalDetections: &total,
			SpeciesRichness: &richness,
		})
	}
	return out
}

// diversity returns the detection total, the number of species with at
// least one detection, and the rounded Shannon index.
func diversity(counts map[string]int) (total, richness int, shannon float64) {
	for _, n := range counts {
		if n > 0 {
			total += n
			richness++
		}
	}
	if total == 0 {
		return 0, 0, 0
	}

	var h float64
	for _, n := range counts {
		if n <= 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log(p)
	}
	// A single species gives -1·ln(1) = -0; normalize it
	return total, richness, math.Abs(math.Round(h*100) / 100)
}
