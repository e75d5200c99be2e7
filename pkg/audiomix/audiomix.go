// Package audiomix resolves per-track volume envelopes for final track
// assembly. The resolver is a pure function of the four track descriptors;
// rules, in priority order: voice is never reduced, ambience is ducked to
// zero under active music, effect volume follows the event's semantic
// category, and music coverage is capped at a fraction of the narrated
// duration.
package audiomix

import (
	"fmt"
	"sort"
	"time"

	"github.com/fablecast/fablecast/pkg/errmodel"
)

// Default gains and the music coverage cap.
const (
	VoiceGain           = 1.0
	DefaultAmbienceGain = 0.4
	DefaultMusicGain    = 0.5
	DefaultEffectGain   = 0.7
	DefaultMusicCap     = 0.30
)

// defaultEffectGains maps semantic effect categories to volume.
var defaultEffectGains = map[string]float64{
	"gunshot":   0.95,
	"explosion": 0.95,
	"thunder":   0.90,
	"scream":    0.85,
	"door":      0.60,
	"footsteps": 0.50,
	"rustle":    0.40,
}

// Segment is a half-open time span [Start, End).
type Segment struct {
	Start time.Duration
	End   time.Duration
}

// Dur returns the segment length.
func (s Segment) Dur() time.Duration { return s.End - s.Start }

// EffectEvent is one point effect on the effects track.
type EffectEvent struct {
	At       time.Duration
	Category string
}

// Tracks describes the four producer outputs for one story.
type Tracks struct {
	// Narrated is the total narrated duration; the music cap is a
	// fraction of it.
	Narrated time.Duration
	Voice    []Segment
	Ambience []Segment
	Effects  []EffectEvent
	Music    []Segment
}

// Span is a segment with a resolved volume.
type Span struct {
	Segment
	Gain float64
}

// EffectSpan is one effect event with its resolved volume.
type EffectSpan struct {
	At       time.Duration
	Category string
	Gain     float64
}

// Envelope is the resolved per-track volume plan.
type Envelope struct {
	Voice    []Span
	Ambience []Span
	Effects  []EffectSpan
	Music    []Span
}

// Option configures the Policy.
type Option func(*Policy)

// WithAmbienceGain sets the ambience volume outside music spans.
func WithAmbienceGain(g float64) Option { return func(p *Policy) { p.ambienceGain = g } }

// WithMusicGain sets the music volume.
func WithMusicGain(g float64) Option { return func(p *Policy) { p.musicGain = g } }

// WithMusicCap sets the maximum music coverage as a fraction of the
// narrated duration.
func WithMusicCap(frac float64) Option { return func(p *Policy) { p.musicCap = frac } }

// WithEffectGain overrides the volume for one effect category.
func WithEffectGain(category string, g float64) Option {
	return func(p *Policy) { p.effectGains[category] = g }
}

// Policy holds the resolution parameters. Immutable after construction.
type Policy struct {
	ambienceGain float64
	musicGain    float64
	musicCap     float64
	effectGains  map[string]float64
}

// New constructs a Policy with the default gains.
func New(opts ...Option) *Policy {
	p := &Policy{
		ambienceGain: DefaultAmbienceGain,
		musicGain:    DefaultMusicGain,
		musicCap:     DefaultMusicCap,
		effectGains:  map[string]float64{},
	}
	for k, v := range defaultEffectGains {
		p.effectGains[k] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve computes the envelope, rejecting any music placement whose merged
// coverage exceeds the cap.
func (p *Policy) Resolve(t Tracks) (Envelope, error) {
	music, err := p.checkTracks(t)
	if err != nil {
		return Envelope{}, err
	}
	budget := p.budget(t)
	if covered(music) > budget {
		return Envelope{}, errmodel.Policy("music_over_cap",
			fmt.Sprintf("music covers %s of %s narrated, cap is %s",
				covered(music), t.Narrated, budget),
			map[string]any{"cap_fraction": p.musicCap})
	}
	return p.envelope(t, music), nil
}

// ResolveTruncated computes the envelope, clipping the music placement at
// the cap instead of rejecting it: the segment that crosses the budget is
// shortened and later segments are dropped.
func (p *Policy) ResolveTruncated(t Tracks) (Envelope, error) {
	music, err := p.checkTracks(t)
	if err != nil {
		return Envelope{}, err
	}
	left := p.budget(t)
	var kept []Segment
	for _, m := range music {
		if left <= 0 {
			break
		}
		if m.Dur() > left {
			m.End = m.Start + left
		}
		left -= m.Dur()
		kept = append(kept, m)
	}
	return p.envelope(t, kept), nil
}

func (p *Policy) budget(t Tracks) time.Duration {
	return time.Duration(float64(t.Narrated) * p.musicCap)
}

func (p *Policy) checkTracks(t Tracks) ([]Segment, error) {
	if t.Narrated <= 0 {
		return nil, errmodel.Validation("bad_tracks", "narrated duration must be positive", nil)
	}
	for _, group := range [][]Segment{t.Voice, t.Ambience, t.Music} {
		for _, s := range group {
			if s.Start < 0 || s.End <= s.Start {
				return nil, errmodel.Validation("bad_tracks",
					fmt.Sprintf("segment [%s, %s) is not a valid span", s.Start, s.End), nil)
			}
		}
	}
	return mergeSegments(t.Music), nil
}

func (p *Policy) envelope(t Tracks, music []Segment) Envelope {
	var env Envelope
	for _, s := range t.Voice {
		env.Voice = append(env.Voice, Span{Segment: s, Gain: VoiceGain})
	}
	for _, s := range t.Ambience {
		env.Ambience = append(env.Ambience, duck(s, music, p.ambienceGain)...)
	}
	for _, e := range t.Effects {
		g, ok := p.effectGains[e.Category]
		if !ok {
			g = DefaultEffectGain
		}
		env.Effects = append(env.Effects, EffectSpan{At: e.At, Category: e.Category, Gain: g})
	}
	for _, m := range music {
		env.Music = append(env.Music, Span{Segment: m, Gain: p.musicGain})
	}
	return env
}

// duck splits one ambience segment against the music spans, forcing gain
// to zero inside every overlap.
func duck(s Segment, music []Segment, gain float64) []Span {
	out := []Span{}
	cur := s.Start
	for _, m := range music {
		if m.End <= cur || m.Start >= s.End {
			continue
		}
		if m.Start > cur {
			out = append(out, Span{Segment: Segment{Start: cur, End: m.Start}, Gain: gain})
		}
		lo, hi := maxDur(m.Start, cur), minDur(m.End, s.End)
		out = append(out, Span{Segment: Segment{Start: lo, End: hi}, Gain: 0})
		cur = hi
	}
	if cur < s.End {
		out = append(out, Span{Segment: Segment{Start: cur, End: s.End}, Gain: gain})
	}
	return out
}

// mergeSegments returns the sorted union of segments.
func mergeSegments(in []Segment) []Segment {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Segment, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	out := []Segment{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func covered(segs []Segment) time.Duration {
	var total time.Duration
	for _, s := range segs {
		total += s.Dur()
	}
	return total
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
