// Package feed supplies ticks to the engine from CSV files or memory.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/rustyeddy/backtest/market"
)

// Feed yields ticks in timestamp order. ok is false after the last tick.
type Feed interface {
	Next() (tick market.Tick, ok bool, err error)
}

// Columns in the default layout when a file has no header:
//
//	time,instrument,bid,ask[,bid_size,ask_size,last,volume]
var defaultColumns = []string{"time", "instrument", "bid", "ask", "bid_size", "ask_size", "last", "volume"}

// CSV reads tick or bar rows. A header row naming the columns is optional;
// recognised names are time, instrument, bid, ask, bid_size, ask_size, last,
// volume, open, high, low, close. Time is RFC3339, RFC3339Nano or a bare
// date. Ticks are filtered to [from, to) when those are set. Short or
// empty rows are skipped.
type CSV struct {
	c    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time

	cols     map[string]int
	sawFirst bool
}

// OpenCSV opens a tick file. Files ending in .xz or .lzma are decompressed
// as they are read.
func OpenCSV(path string, from, to time.Time) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var r io.Reader = f
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		r, err = xz.NewReader(f)
	case ".lzma":
		r, err = lzma.NewReader(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	c := NewCSV(r, from, to)
	c.c = f
	return c, nil
}

func NewCSV(r io.Reader, from, to time.Time) *CSV {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &CSV{r: cr, from: from, to: to, cols: columnIndex(defaultColumns)}
}

func (f *CSV) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *CSV) Next() (market.Tick, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Tick{}, false, nil
		}
		if err != nil {
			return market.Tick{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				f.cols = columnIndex(row)
				continue
			}
		}

		t, ok, err := f.parse(row)
		if err != nil {
			line, _ := f.r.FieldPos(0)
			return market.Tick{}, false, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok || !inRange(t.Timestamp, f.from, f.to) {
			continue
		}
		return t, true, nil
	}
}

func columnIndex(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[strings.ToLower(strings.TrimSpace(n))] = i
	}
	return idx
}

func (f *CSV) field(row []string, name string) string {
	i, ok := f.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (f *CSV) parse(row []string) (market.Tick, bool, error) {
	ts := f.field(row, "time")
	inst := f.field(row, "instrument")
	if ts == "" || inst == "" {
		return market.Tick{}, false, nil
	}
	at, date, err := parseTime(ts)
	if err != nil {
		return market.Tick{}, false, err
	}
	t := market.Tick{Timestamp: at, Instrument: inst, Date: date}

	prices := []struct {
		name string
		dst  *float64
	}{
		{"bid", &t.Bid}, {"ask", &t.Ask}, {"last", &t.Last},
		{"open", &t.Open}, {"high", &t.High}, {"low", &t.Low}, {"close", &t.Close},
	}
	for _, p := range prices {
		v := f.field(row, p.name)
		if v == "" {
			continue
		}
		if *p.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return market.Tick{}, false, fmt.Errorf("bad %s %q: %w", p.name, v, err)
		}
	}

	sizes := []struct {
		name string
		dst  *uint64
	}{
		{"bid_size", &t.BidSize}, {"ask_size", &t.AskSize}, {"volume", &t.Volume},
	}
	for _, s := range sizes {
		v := f.field(row, s.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			return market.Tick{}, false, fmt.Errorf("bad %s %q", s.name, v)
		}
		*s.dst = uint64(n)
	}

	if t.Reference() == 0 {
		return market.Tick{}, false, nil
	}
	return t, true, nil
}

func parseTime(s string) (time.Time, string, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), t.UTC().Format(time.DateOnly), nil
		}
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("bad time %q: %w", s, err)
	}
	return t, s, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// Slice replays ticks from memory.
type Slice struct {
	ticks []market.Tick
	next  int
}

func NewSlice(ticks ...market.Tick) *Slice { return &Slice{ticks: ticks} }

func (s *Slice) Next() (market.Tick, bool, error) {
	if s.next >= len(s.ticks) {
		return market.Tick{}, false, nil
	}
	t := s.ticks[s.next]
	s.next++
	return t, true, nil
}

// Collect drains f into a slice.
func Collect(f Feed) ([]market.Tick, error) {
	var out []market.Tick
	for {
		t, ok, err := f.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, t)
	}
}
