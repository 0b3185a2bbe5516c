package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
)

// Point is one historical price.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// LoadCSV reads a "timestamp,price" file with a header row. Timestamps are
// RFC 3339 or unix seconds.
func LoadCSV(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses CSV rows from r.
func ReadCSV(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected timestamp,price", line)
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: price: %w", line, err)
		}
		out = append(out, Point{Timestamp: ts, Price: price})
	}
	if len(out) == 0 {
		return nil, errors.New("no data points")
	}
	return out, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: unsupported format", s)
	}
	return t, nil
}

// SampleHours is a year of hourly points.
const SampleHours = 365 * 24

// GenerateSample produces a deterministic hourly random walk with a slight
// upward drift, clamped to [50, 200].
func GenerateSample(n int, seed int64) []Point {
	if n <= 0 {
		n = SampleHours
	}
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0

	out := make([]Point, n)
	for i := range out {
		change := (rng.Float64() - 0.48) * 2
		price = math.Max(50, math.Min(200, price+change))
		out[i] = Point{Timestamp: start.Add(time.Duration(i) * time.Hour), Price: price}
	}
	return out
}
