package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/antonholmquist/jason"

	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/payload"
)

const componentName = "dataset"

// Decode normalizes body and decodes it into the typed value for id:
// ServerClock, []DetectionRecord, []DailyDiversityEntry,
// []SpeciesAbundanceEntry or []HourlyActivityEntry.
func Decode(id ID, body []byte) (any, error) {
	switch id {
	case Heartbeat:
		return DecodeHeartbeat(body)
	case Records:
		return DecodeRecords(body)
	case DailyDiversity:
		return DecodeDailyDiversity(body)
	case SpeciesAbundance:
		return DecodeSpeciesAbundance(body)
	case HourlyActivity:
		return DecodeHourlyActivity(body)
	default:
		return nil, errors.Newf("unknown dataset %q", id).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
}

// DecodeHeartbeat decodes {"time": <unix seconds>}.
func DecodeHeartbeat(body []byte) (ServerClock, error) {
	var wire struct {
		Time *float64 `json:"time"`
	}
	if err := payload.Decode(body, &wire); err != nil {
		return ServerClock{}, err
	}
	if wire.Time == nil {
		return ServerClock{}, shapeError(Heartbeat, "missing numeric time")
	}

	t := *wire.Time
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return ServerClock{}, shapeError(Heartbeat, "time out of range")
	}

	return ServerClock{Time: t}, nil
}

// DecodeRecords decodes the detection record sequence, preserving order.
// A record with a missing species or date, or a count that is missing,
// non-numeric, fractional or negative, rejects the whole sequence.
func DecodeRecords(body []byte) ([]DetectionRecord, error) {
	objs, err := objectArray(Records, body)
	if err != nil {
		return nil, err
	}

	records := make([]DetectionRecord, 0, len(objs))
	for i, obj := range objs {
		species, err := obj.GetString("bird")
		if err != nil || species == "" {
			return nil, recordError(Records, i, "bird", "missing species")
		}
		date, err := obj.GetString("date")
		if err != nil || date == "" {
			return nil, recordError(Records, i, "date", "missing date")
		}
		count, err := countField(Records, i, obj, "count")
		if err != nil {
			return nil, err
		}
		records = append(records, DetectionRecord{Species: species, Date: date, Count: count})
	}

	return records, nil
}

// DecodeDailyDiversity decodes per-day diversity entries.
// total_detections and species_richness are optional.
func DecodeDailyDiversity(body []byte) ([]DailyDiversityEntry, error) {
	objs, err := objectArray(DailyDiversity, body)
	if err != nil {
		return nil, err
	}

	entries := make([]DailyDiversityEntry, 0, len(objs))
	for i, obj := range objs {
		date, err := obj.GetString("date")
		if err != nil || date == "" {
			return nil, recordError(DailyDiversity, i, "date", "missing date")
		}
		shannon, err := obj.GetFloat64("shannon_index")
		if err != nil || math.IsNaN(shannon) || shannon < 0 {
			return nil, recordError(DailyDiversity, i, "shannon_index", "missing or invalid shannon index")
		}

		entry := DailyDiversityEntry{Date: date, ShannonIndex: shannon}
		if entry.TotalDetections, err = optionalCount(DailyDiversity, i, obj, "total_detections"); err != nil {
			return nil, err
		}
		if entry.SpeciesRichness, err = optionalCount(DailyDiversity, i, obj, "species_richness"); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// DecodeSpeciesAbundance decodes overall per-label totals.
func DecodeSpeciesAbundance(body []byte) ([]SpeciesAbundanceEntry, error) {
	objs, err := objectArray(SpeciesAbundance, body)
	if err != nil {
		return nil, err
	}

	entries := make([]SpeciesAbundanceEntry, 0, len(objs))
	for i, obj := range objs {
		label, err := obj.GetString("label")
		if err != nil || label == "" {
			return nil, recordError(SpeciesAbundance, i, "label", "missing label")
		}
		total, err := countField(SpeciesAbundance, i, obj, "total_count")
		if err != nil {
			return nil, err
		}
		entries = append(entries, SpeciesAbundanceEntry{Label: label, TotalCount: total})
	}

	return entries, nil
}

// DecodeHourlyActivity decodes per-hour counts; hour must be within 0-23.
func DecodeHourlyActivity(body []byte) ([]HourlyActivityEntry, error) {
	objs, err := objectArray(HourlyActivity, body)
	if err != nil {
		return nil, err
	}

	entries := make([]HourlyActivityEntry, 0, len(objs))
	for i, obj := range objs {
		hour, err := countField(HourlyActivity, i, obj, "hour")
		if err != nil {
			return nil, err
		}
		if hour > 23 {
			return nil, recordError(HourlyActivity, i, "hour", fmt.Sprintf("hour %d out of range 0-23", hour))
		}
		count, err := countField(HourlyActivity, i, obj, "count")
		if err != nil {
			return nil, err
		}
		entries = append(entries, HourlyActivityEntry{Hour: hour, Count: count})
	}

	return entries, nil
}

// objectArray normalizes body and requires a JSON array of objects.
func objectArray(id ID, body []byte) ([]*jason.Object, error) {
	v, err := payload.Parse(body)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Context("dataset", id.String()).
			Build()
	}

	values, err := v.Array()
	if err != nil {
		return nil, shapeError(id, "expected an array of objects")
	}
	objs := make([]*jason.Object, 0, len(values))
	for _, elem := range values {
		obj, err := elem.Object()
		if err != nil {
			return nil, shapeError(id, "expected an array of objects")
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// countField reads a required non-negative integer. Integral floats such as 3.0 are accepted.
func countField(id ID, index int, obj *jason.Object, key string) (int, error) {
	value, err := obj.GetValue(key)
	if err != nil {
		return 0, recordError(id, index, key, "missing "+key)
	}
	return countValue(id, index, key, value)
}

func optionalCount(id ID, index int, obj *jason.Object, key string) (*int, error) {
	value, err := obj.GetValue(key)
	if err != nil || value.Null() == nil {
		return nil, nil //nolint:nilnil // absent optional field
	}
	n, err := countValue(id, index, key, value)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func countValue(id ID, index int, key string, value *jason.Value) (int, error) {
	num, err := value.Number()
	if err != nil {
		return 0, recordError(id, index, key, key+" is not a number")
	}

	n, err := parseCount(num)
	if err != nil {
		return 0, recordError(id, index, key, err.Error())
	}
	return n, nil
}

func parseCount(num json.Number) (int, error) {
	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("value %d too large", n)
		}
		return int(n), nil
	}

	f, err := num.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", num.String())
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("fractional value %s", num.String())
	}
	if f < 0 {
		return 0, fmt.Errorf("negative value %s", num.String())
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("value %s too large", num.String())
	}
	return int(f), nil
}

func shapeError(id ID, reason string) error {
	return errors.Newf("%s: %s", id, reason).
		Component(componentName).
		Category(errors.CategoryMalformedPayload).
		Context("dataset", id.String()).
		Build()
}

func recordError(id ID, index int, field, reason string) error {
	return errors.Newf("%s[%d]: %s", id, index, reason).
		Component(componentName).
		Category(errors.CategoryInvalidRecord).
		Context("dataset", id.String()).
		Context("index", index).
		Context("field", field).
		Build()
}
