// Package ingest loads raw location metadata and reviews from JSON-lines
// exports and from review feeds.
package ingest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/config"
	"github.com/TobiSchelling/reviewguard/internal/records"
)

const maxLine = 16 << 20

// Stats counts what was loaded.
type Stats struct {
	Locations   int
	Reviews     int
	FeedReviews int
	Malformed   int
	Sources     map[string]int
}

// Input is everything loaded for one run.
type Input struct {
	Locations []records.Location
	Reviews   []records.Review
	Stats     Stats
}

// Load reads the metadata and review files named in cfg and appends the
// reviews of every configured feed. A feed that cannot be fetched is logged
// and skipped.
func Load(ctx context.Context, cfg config.Input) (*Input, error) {
	if cfg.Metadata == "" || cfg.Reviews == "" {
		return nil, eris.Wrap(config.ErrInvalid, "input.metadata and input.reviews must both be set")
	}

	in := &Input{Stats: Stats{Sources: make(map[string]int)}}

	locations, bad, err := LoadLocations(cfg.Metadata)
	if err != nil {
		return nil, err
	}
	in.Locations = locations
	in.Stats.Locations = len(locations)
	in.Stats.Malformed += bad

	reviews, bad, err := LoadReviews(cfg.Reviews)
	if err != nil {
		return nil, err
	}
	in.Reviews = reviews
	in.Stats.Reviews = len(reviews)
	in.Stats.Malformed += bad

	if len(cfg.Feeds) > 0 {
		fp := NewFeedParser(cfg.Feeds)
		for _, fr := range fp.ParseAll(ctx) {
			in.Reviews = append(in.Reviews, fr.Review)
			in.Stats.FeedReviews++
			in.Stats.Sources[fr.Source]++
		}
	}

	zap.L().Info("Input loaded",
		zap.Int("locations", in.Stats.Locations),
		zap.Int("reviews", in.Stats.Reviews),
		zap.Int("feed_reviews", in.Stats.FeedReviews),
		zap.Int("malformed", in.Stats.Malformed))
	return in, nil
}

// LoadLocations reads one location per line. It returns the number of lines
// that could not be decoded; those are skipped.
func LoadLocations(path string) ([]records.Location, int, error) {
	return readLines[records.Location](path)
}

// LoadReviews reads one review per line. It returns the number of lines that
// could not be decoded; those are skipped.
func LoadReviews(path string) ([]records.Review, int, error) {
	return readLines[records.Review](path)
}

func readLines[T any](path string) ([]T, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "opening gzip %s", path)
		}
		defer gz.Close()
		r = gz
	}

	items, bad, err := decodeLines[T](r)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "reading %s", path)
	}
	if bad > 0 {
		zap.L().Warn("Skipped malformed lines", zap.String("path", path), zap.Int("count", bad))
	}
	return items, bad, nil
}

func decodeLines[T any](r io.Reader) ([]T, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		items []T
		bad   int
		line  int
	)
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(b, &item); err != nil {
			zap.L().Debug("Malformed line", zap.Int("line", line), zap.Error(err))
			bad++
			continue
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	return items, bad, nil
}
