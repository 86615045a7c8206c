package timeline

import (
	"sort"
)

// State is an immutable snapshot of a session's timeline. Every transition
// returns a new State and leaves the receiver untouched, so a State can be
// shared between goroutines without locking.
type State struct {
	segments []Segment
}

// NewState returns a State holding a copy of segments.
func NewState(segments []Segment) State {
	return State{segments: cloneSegments(segments)}
}

// Segments returns a copy of the full segment list in timeline order.
func (s State) Segments() []Segment {
	return cloneSegments(s.segments)
}

func (s State) Len() int {
	return len(s.segments)
}

// Find returns the segment with the given id.
func (s State) Find(id string) (Segment, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.segments[i], true
	}
	return Segment{}, false
}

// ToggleSelect flips the selected flag of the segment with the given id.
// A segment selected again keeps its order from an earlier composition only
// while no other selected segment holds that order. Unknown ids leave the
// state unchanged.
func (s State) ToggleSelect(id string) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	next := s.clone()
	seg := &next.segments[i]
	seg.Selected = !seg.Selected
	if seg.Selected && seg.Order != nil && next.orderTaken(*seg.Order, i) {
		clearPlacement(seg)
	}
	return next
}

// Reorder moves the segment with the given id to target within the full list,
// shifting the others. target is clamped to the list bounds. Unknown ids and
// moves onto the segment's own position leave the state unchanged.
func (s State) Reorder(id string, target int) State {
	from := s.indexOf(id)
	if from < 0 {
		return s
	}
	if target < 0 {
		target = 0
	}
	if target > len(s.segments)-1 {
		target = len(s.segments) - 1
	}
	if s.segments[target].ID == id {
		return s
	}

	moved := s.segments[from]
	rest := make([]Segment, 0, len(s.segments))
	rest = append(rest, s.segments[:from]...)
	rest = append(rest, s.segments[from+1:]...)

	out := make([]Segment, 0, len(s.segments))
	out = append(out, rest[:target]...)
	out = append(out, moved)
	out = append(out, rest[target:]...)
	return State{segments: cloneSegments(out)}
}

// SelectedOrdered returns the segments that are selected or carry an order.
// Selected segments sort before unselected ones, then by order ascending with
// unordered segments last, then by position in the timeline.
func (s State) SelectedOrdered() []Segment {
	picked := make([]Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		if seg.Selected || seg.Order != nil {
			picked = append(picked, seg)
		}
	}

	sort.SliceStable(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if a.Selected != b.Selected {
			return a.Selected
		}
		switch {
		case a.Order == nil && b.Order == nil:
			return false
		case a.Order == nil:
			return false
		case b.Order == nil:
			return true
		default:
			return *a.Order < *b.Order
		}
	})

	return cloneSegments(picked)
}

// Selected returns only the selected segments, in SelectedOrdered order.
// This is the playback and composition sequence.
func (s State) Selected() []Segment {
	var out []Segment
	for _, seg := range s.SelectedOrdered() {
		if seg.Selected {
			out = append(out, seg)
		}
	}
	return out
}

// ApplyComposition records the placements returned by a composition. Matching
// segments get their order and timeline offsets set and become selected;
// placements naming unknown ids are ignored. Selected segments left out of the
// composition lose an order that a placement now holds.
func (s State) ApplyComposition(placements []Placement) State {
	next := s.clone()
	placed := make(map[int]bool, len(placements))
	orders := make(map[int]bool, len(placements))
	for _, p := range placements {
		i := next.indexOf(p.ID)
		if i < 0 {
			continue
		}
		seg := &next.segments[i]
		seg.Order = intPtr(p.Order)
		seg.TimelineStart = floatPtr(p.TimelineStart)
		seg.TimelineEnd = floatPtr(p.TimelineEnd)
		seg.Selected = true
		placed[i] = true
		orders[p.Order] = true
	}
	for i := range next.segments {
		seg := &next.segments[i]
		if placed[i] || !seg.Selected || seg.Order == nil {
			continue
		}
		if orders[*seg.Order] {
			clearPlacement(seg)
		}
	}
	return next
}

// Regenerate replaces the segment list with fresh, carrying user state over
// from segments whose id survives. Fresh segments keep their generated
// position; a carried order that would collide with an earlier one is dropped.
func (s State) Regenerate(fresh []Segment) State {
	prev := make(map[string]Segment, len(s.segments))
	for _, seg := range s.segments {
		prev[seg.ID] = seg
	}

	out := cloneSegments(fresh)
	usedOrders := make(map[int]bool)
	for i := range out {
		old, ok := prev[out[i].ID]
		if !ok {
			continue
		}
		out[i].Selected = old.Selected
		if old.Order != nil && !usedOrders[*old.Order] {
			usedOrders[*old.Order] = true
			out[i].Order = intPtr(*old.Order)
			out[i].TimelineStart = copyFloat(old.TimelineStart)
			out[i].TimelineEnd = copyFloat(old.TimelineEnd)
		}
		if out[i].Confidence == nil {
			out[i].Confidence = copyFloat(old.Confidence)
		}
	}
	return State{segments: out}
}

// RecordScore folds a confidence score for an ad into its segment. The ad's
// confidence is the highest score recorded for it across all video segments.
func (s State) RecordScore(adSegmentID string, confidence float64) State {
	i := s.indexOf(adSegmentID)
	if i < 0 || s.segments[i].Kind != KindAdvertisement {
		return s
	}
	if c := s.segments[i].Confidence; c != nil && *c >= confidence {
		return s
	}
	next := s.clone()
	next.segments[i].Confidence = floatPtr(confidence)
	return next
}

// RemoveAsset drops every segment referencing the given ad asset.
func (s State) RemoveAsset(assetID string) State {
	out := make([]Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		if seg.AssetID == assetID {
			continue
		}
		out = append(out, seg)
	}
	if len(out) == len(s.segments) {
		return s
	}
	return State{segments: cloneSegments(out)}
}

// orderTaken reports whether a selected segment other than the one at skip
// holds order.
func (s State) orderTaken(order, skip int) bool {
	for i, seg := range s.segments {
		if i != skip && seg.Selected && seg.Order != nil && *seg.Order == order {
			return true
		}
	}
	return false
}

func clearPlacement(seg *Segment) {
	seg.Order = nil
	seg.TimelineStart = nil
	seg.TimelineEnd = nil
}

func (s State) indexOf(id string) int {
	for i := range s.segments {
		if s.segments[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	return State{segments: cloneSegments(s.segments)}
}

func cloneSegments(in []Segment) []Segment {
	out := make([]Segment, len(in))
	for i, seg := range in {
		seg.Order = copyInt(seg.Order)
		seg.TimelineStart = copyFloat(seg.TimelineStart)
		seg.TimelineEnd = copyFloat(seg.TimelineEnd)
		seg.Confidence = copyFloat(seg.Confidence)
		out[i] = seg
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return floatPtr(*p)
}
