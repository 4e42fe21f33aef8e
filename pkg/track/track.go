// Package track loads, validates, generates and stores race tracks.
package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/botrace/pkg/model"
)

var ErrInvalidTrack = errors.New("invalid track")

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath derives the file format from the extension. Unknown
// extensions are treated as YAML, which also accepts JSON documents.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads and validates the track stored in path
func Load(path string) (*model.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Read decodes a track from r and validates it.
// Missing summary lists (fuel stations, boost pads, obstacles) are derived
// from the segments.
func Read(r io.Reader, format Format) (*model.Track, error) {
	t := &model.Track{}
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(t)
	default:
		err = yaml.NewDecoder(r).Decode(t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode track: %w", err)
	}
	if t.Lanes == 0 {
		t.Lanes = model.NumLanes
	}
	if t.LapDistance == 0 {
		t.LapDistance = float64(len(t.Segments)) * model.SegmentLength
	}
	for i := range t.Segments {
		if t.Segments[i].Obstacles == nil {
			t.Segments[i].Obstacles = []model.Obstacle{}
		}
		if t.Segments[i].Items == nil {
			t.Segments[i].Items = []model.Item{}
		}
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	if t.FuelStations == nil && t.BoostPads == nil && t.Obstacles == nil {
		Summarize(t)
	}
	return t, nil
}

// Validate checks the structural rules of a track.
// All violations are reported, each wrapping ErrInvalidTrack.
//
//nolint:gocognit,cyclop // flat list of checks
func Validate(t *model.Track) error {
	errs := []error{}
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTrack, fmt.Sprintf(format, args...)))
	}
	if len(t.Segments) == 0 {
		add("no segments")
		return errors.Join(errs...)
	}
	if t.Lanes != model.NumLanes {
		add("lanes must be %d, got %d", model.NumLanes, t.Lanes)
	}
	want := float64(len(t.Segments)) * model.SegmentLength
	if math.Abs(t.LapDistance-want) > 1e-6 {
		add("lapDistance %.1f does not match %d segments", t.LapDistance, len(t.Segments))
	}
	validLane := func(l int) bool { return l >= 0 && l < model.NumLanes }
	for i := range t.Segments {
		seg := &t.Segments[i]
		if math.Abs(seg.Position-float64(i)*model.SegmentLength) > 1e-6 {
			add("segment %d: position %.1f, expected %.1f", i, seg.Position, float64(i)*model.SegmentLength)
		}
		switch seg.Type {
		case model.SegmentNormal, model.SegmentObstacle, model.SegmentBoostZone, model.SegmentFuelZone:
		default:
			add("segment %d: unknown type %q", i, seg.Type)
		}
		for _, o := range seg.Obstacles {
			if !validLane(o.Lane) {
				add("segment %d: obstacle lane %d", i, o.Lane)
			}
		}
		for _, item := range seg.Items {
			switch item.Type {
			case model.ItemFuel:
				if len(item.Lanes) == 0 {
					add("segment %d: fuel item without lanes", i)
				}
				for _, l := range item.Lanes {
					if l != 1 && l != 2 {
						add("segment %d: fuel lane %d, only lanes 1 and 2 may have fuel", i, l)
					}
				}
			case model.ItemBoostPad:
				if !validLane(item.Lane) {
					add("segment %d: boost pad lane %d", i, item.Lane)
				}
			default:
				add("segment %d: unknown item type %q", i, item.Type)
			}
		}
	}
	return errors.Join(errs...)
}

// Summarize recomputes the fuel station, boost pad and obstacle lists from
// the segments. A fuel station is reported at the first segment of a run of
// fuel zones.
func Summarize(t *model.Track) {
	t.FuelStations = []float64{}
	t.BoostPads = []float64{}
	t.Obstacles = []model.ObstacleMarker{}
	for i := range t.Segments {
		seg := &t.Segments[i]
		if seg.Type == model.SegmentFuelZone &&
			(i == 0 || t.Segments[i-1].Type != model.SegmentFuelZone) {
			t.FuelStations = append(t.FuelStations, seg.Position)
		}
		if seg.Type == model.SegmentBoostZone {
			t.BoostPads = append(t.BoostPads, seg.Position)
		}
		if len(seg.Obstacles) > 0 {
			lanes := make([]int, 0, len(seg.Obstacles))
			for _, o := range seg.Obstacles {
				lanes = append(lanes, o.Lane)
			}
			t.Obstacles = append(t.Obstacles, model.ObstacleMarker{Position: seg.Position, Lanes: lanes})
		}
	}
}

// Write encodes the track to w
func Write(w io.Writer, t *model.Track, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	}
}

// Save writes the track to path, the format is derived from the extension
func Save(path string, t *model.Track) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, t, FormatFromPath(path)); err != nil {
		f.Close()
		return fmt.Errorf("write track %s: %w", path, err)
	}
	return f.Close()
}
