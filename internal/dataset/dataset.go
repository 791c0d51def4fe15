// Package dataset defines the backend datasets, their wire shapes and decoders.
package dataset

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// ID identifies one backend dataset.
type ID string

const (
	Heartbeat        ID = "heartbeat"
	Records          ID = "records"
	DailyDiversity   ID = "daily-diversity"
	SpeciesAbundance ID = "species-abundance"
	HourlyActivity   ID = "hourly-activity"
)

// All lists every dataset in fetch order.
var All = []ID{Heartbeat, Records, DailyDiversity, SpeciesAbundance, HourlyActivity}

var endpoints = map[ID]string{
	Heartbeat:        "/api/time",
	Records:          "/api/summary",
	DailyDiversity:   "/api/daily-stats",
	SpeciesAbundance: "/api/species-totals",
	HourlyActivity:   "/api/hourly-patterns",
}

// Endpoint returns the backend path serving the dataset.
func (id ID) Endpoint() string {
	return endpoints[id]
}

// Optional reports whether a view can be ready without this dataset.
// Only the heartbeat clock is optional.
func (id ID) Optional() bool {
	return id == Heartbeat
}

// Valid reports whether id names a known dataset.
func (id ID) Valid() bool {
	_, ok := endpoints[id]
	return ok
}

func (id ID) String() string {
	return string(id)
}

// DetectionRecord is one per-day detection count for a species.
// Several records may share species and date; their counts add up.
type DetectionRecord struct {
	Species string `json:"bird"`
	Date    string `json:"date"`
	Count   int    `json:"count"`
}

// DailyDiversityEntry is the diversity summary for one day.
// TotalDetections and SpeciesRichness are nil when the backend omits them.
type DailyDiversityEntry struct {
	Date            string  `json:"date"`
	ShannonIndex    float64 `json:"shannon_index"`
	TotalDetections *int    `json:"total_detections,omitempty"`
	SpeciesRichness *int    `json:"species_richness,omitempty"`
}

// SpeciesAbundanceEntry is the overall detection count of one species label.
type SpeciesAbundanceEntry struct {
	Label      string `json:"label"`
	TotalCount int    `json:"total_count"`
}

// HourlyActivityEntry is the detection count for one hour of day (0-23).
type HourlyActivityEntry struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// ServerClock is the backend heartbeat: unix seconds, fractional allowed.
type ServerClock struct {
	Time float64 `json:"time"`
}

// ServerTime converts the heartbeat into a time.Time.
func (c ServerClock) ServerTime() time.Time {
	sec, frac := math.Modf(c.Time)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Analytics groups the three independently fetched analytics datasets.
// They are not cross-validated against each other or against the records.
type Analytics struct {
	Daily     []DailyDiversityEntry
	Abundance []SpeciesAbundanceEntry
	Hourly    []HourlyActivityEntry
}

// Set holds the committed datasets of one session.
// RecordsVersion increases every time a new record sequence is committed.
type Set struct {
	Clock          *ServerClock
	Records        []DetectionRecord
	Analytics      Analytics
	RecordsVersion uint64

	held map[ID]bool
}

// Has reports whether the dataset has been committed.
func (s *Set) Has(id ID) bool {
	return s.held[id]
}

// Held returns the committed dataset IDs in fetch order.
func (s *Set) Held() []ID {
	out := make([]ID, 0, len(s.held))
	for _, id := range All {
		if s.held[id] {
			out = append(out, id)
		}
	}
	return out
}

// Missing returns the datasets in ids that have not been committed.
func (s *Set) Missing(ids []ID) []ID {
	var out []ID
	for _, id := range ids {
		if !s.held[id] {
			out = append(out, id)
		}
	}
	return out
}

// Put commits a decoded value for id. The value must have the type Decode returns for id.
// Committing records bumps RecordsVersion.
func (s *Set) Put(id ID, value any) error {
	switch id {
	case Heartbeat:
		v, ok := value.(ServerClock)
		if !ok {
			return typeMismatch(id, value)
		}
		s.Clock = &v
	case Records:
		v, ok := value.([]DetectionRecord)
		if !ok {
			return typeMismatch(id, value)
		}
		s.Records = v
		s.RecordsVersion++
	case DailyDiversity:
		v, ok := value.([]DailyDiversityEntry)
		if !ok {
			return typeMismatch(id, value)
		}
		s.Analytics.Daily = v
	case SpeciesAbundance:
		v, ok := value.([]SpeciesAbundanceEntry)
		if !ok {
			return typeMismatch(id, value)
		}
		s.Analytics.Abundance = v
	case HourlyActivity:
		v, ok := value.([]HourlyActivityEntry)
		if !ok {
			return typeMismatch(id, value)
		}
		s.Analytics.Hourly = v
	default:
		return fmt.Errorf("unknown dataset %q", id)
	}

	if s.held == nil {
		s.held = make(map[ID]bool, len(All))
	}
	s.held[id] = true
	return nil
}

// Reset forgets every committed dataset. RecordsVersion keeps counting so
// views derived before the reset can never match data committed after it.
func (s *Set) Reset() {
	version := s.RecordsVersion
	*s = Set{RecordsVersion: version}
}

// Clone returns a copy that shares no mutable state with s.
func (s *Set) Clone() Set {
	out := Set{
		Records:        slices.Clone(s.Records),
		RecordsVersion: s.RecordsVersion,
		Analytics: Analytics{
			Daily:     slices.Clone(s.Analytics.Daily),
			Abundance: slices.Clone(s.Analytics.Abundance),
			Hourly:    slices.Clone(s.Analytics.Hourly),
		},
	}
	if s.Clock != nil {
		clock := *s.Clock
		out.Clock = &clock
	}
	out.held = maps.Clone(s.held)
	return out
}

func typeMismatch(id ID, value any) error {
	return fmt.Errorf("dataset %s: unexpected value type %T", id, value)
}
