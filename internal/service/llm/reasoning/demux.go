// Package reasoning splits a single raw model output stream into ordered
// reasoning and answer segments based on an embedded tag convention.
package reasoning

import (
	"fmt"
	"strings"
)

// State of the tag machine. Exactly two states; the stream starts in the
// answer channel.
type State int

const (
	StateAnswer State = iota
	StateReasoning
)

// Segment is one demultiplexed piece of output, in original stream order.
type Segment struct {
	Reasoning bool
	Text      string
}

// Demux is a two-state tag state machine over a fragment stream. It buffers
// only enough of the tail to detect a marker that spans fragment boundaries;
// everything else is emitted as soon as it arrives.
//
// A Demux is single-use: create a fresh one per model invocation.
type Demux struct {
	open  string // e.g. "<think>"
	close string // e.g. "</think>"
	state State
	carry string // tail that may be a marker prefix
}

// New creates a demultiplexer for the given tag name (e.g. "think").
func New(tag string) *Demux {
	return &Demux{
		open:  fmt.Sprintf("<%s>", tag),
		close: fmt.Sprintf("</%s>", tag),
		state: StateAnswer,
	}
}

// State returns the current channel.
func (d *Demux) State() State {
	return d.state
}

// Feed consumes one raw fragment and returns the segments it completes.
// Fragment boundaries within a channel are preserved: Feed never merges
// text across calls except for the carried marker-prefix tail.
func (d *Demux) Feed(fragment string) []Segment {
	buf := d.carry + fragment
	d.carry = ""

	var segments []Segment
	for {
		marker := d.open
		if d.state == StateReasoning {
			marker = d.close
		}

		i := strings.Index(buf, marker)
		if i < 0 {
			// Hold back the longest tail that could begin the marker
			keep := prefixOverlap(buf, marker)
			if emit := buf[:len(buf)-keep]; emit != "" {
				segments = append(segments, d.segment(emit))
			}
			d.carry = buf[len(buf)-keep:]
			return segments
		}

		if emit := buf[:i]; emit != "" {
			segments = append(segments, d.segment(emit))
		}
		buf = buf[i+len(marker):]
		if d.state == StateAnswer {
			d.state = StateReasoning
		} else {
			d.state = StateAnswer
		}
	}
}

// Flush drains any held-back tail at end of stream. An unterminated
// reasoning section is flushed as reasoning rather than failing the turn:
// truncated tagging degrades gracefully.
func (d *Demux) Flush() []Segment {
	if d.carry == "" {
		return nil
	}
	seg := d.segment(d.carry)
	d.carry = ""
	return []Segment{seg}
}

func (d *Demux) segment(text string) Segment {
	return Segment{Reasoning: d.state == StateReasoning, Text: text}
}

// prefixOverlap returns the length of the longest proper suffix of buf that
// is a prefix of marker.
func prefixOverlap(buf, marker string) int {
	max := len(marker) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for k := max; k > 0; k-- {
		if strings.HasPrefix(marker, buf[len(buf)-k:]) {
			return k
		}
	}
	return 0
}
