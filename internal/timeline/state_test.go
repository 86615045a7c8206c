package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() State {
	ads := []AdAsset{
		{ID: "a", Name: "A", DurationSeconds: 10},
		{ID: "b", Name: "B", DurationSeconds: 15},
	}
	return NewState(Generate(65, nil, ads, 30))
}

func ids(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}

func TestToggleSelect_Involution(t *testing.T) {
	s := sampleState()

	once := s.ToggleSelect("win:30-60")
	seg, ok := once.Find("win:30-60")
	require.True(t, ok)
	assert.True(t, seg.Selected)

	twice := once.ToggleSelect("win:30-60")
	assert.Equal(t, s.Segments(), twice.Segments())
}

func TestToggleSelect_UnknownID(t *testing.T) {
	s := sampleState()
	assert.Equal(t, s.Segments(), s.ToggleSelect("missing").Segments())
}

func TestToggleSelect_DoesNotMutateReceiver(t *testing.T) {
	s := sampleState()
	_ = s.ToggleSelect("ad:a")

	seg, _ := s.Find("ad:a")
	assert.False(t, seg.Selected)
}

func TestReorder(t *testing.T) {
	s := sampleState()

	moved := s.Reorder("win:60-65", 0)
	assert.Equal(t, []string{"win:60-65", "ad:a", "ad:b", "win:0-30", "win:30-60"}, ids(moved.Segments()))

	back := moved.Reorder("win:60-65", 4)
	assert.Equal(t, ids(s.Segments()), ids(back.Segments()))
}

func TestReorder_ClampsTarget(t *testing.T) {
	s := sampleState()

	assert.Equal(t, "ad:a", s.Reorder("ad:a", 99).Segments()[4].ID)
	assert.Equal(t, "win:0-30", s.Reorder("win:0-30", -3).Segments()[0].ID)
}

func TestReorder_NoOps(t *testing.T) {
	s := sampleState()

	assert.Equal(t, ids(s.Segments()), ids(s.Reorder("ad:b", 1).Segments()))
	assert.Equal(t, ids(s.Segments()), ids(s.Reorder("missing", 2).Segments()))
	assert.Empty(t, NewState(nil).Reorder("x", 0).Segments())
}

func TestReorder_RoundTripRestoresOthers(t *testing.T) {
	s := sampleState()
	others := func(st State) []string {
		var out []string
		for _, id := range ids(st.Segments()) {
			if id != "ad:b" {
				out = append(out, id)
			}
		}
		return out
	}

	for i := 0; i < s.Len(); i++ {
		for j := 0; j < s.Len(); j++ {
			got := s.Reorder("ad:b", i).Reorder("ad:b", j).Reorder("ad:b", i)
			assert.Equal(t, others(s), others(got), "i=%d j=%d", i, j)
			assert.Equal(t, "ad:b", got.Segments()[i].ID)
		}
	}
}

func TestSelectedOrdered(t *testing.T) {
	s := sampleState().
		ToggleSelect("win:30-60").
		ToggleSelect("ad:a")

	got := s.SelectedOrdered()
	assert.Equal(t, []string{"ad:a", "win:30-60"}, ids(got))

	s = s.ApplyComposition([]Placement{
		{ID: "win:30-60", Order: 0, TimelineStart: 0, TimelineEnd: 30},
		{ID: "ad:a", Order: 1, TimelineStart: 30, TimelineEnd: 40},
	})
	assert.Equal(t, []string{"win:30-60", "ad:a"}, ids(s.SelectedOrdered()))
}

func TestSelectedOrdered_MixedState(t *testing.T) {
	s := sampleState().ApplyComposition([]Placement{
		{ID: "win:0-30", Order: 0, TimelineStart: 0, TimelineEnd: 30},
		{ID: "ad:b", Order: 1, TimelineStart: 30, TimelineEnd: 45},
	})
	s = s.ToggleSelect("win:0-30")
	s = s.ToggleSelect("win:60-65")

	got := s.SelectedOrdered()
	assert.Equal(t, []string{"ad:b", "win:60-65", "win:0-30"}, ids(got))
	for _, seg := range got {
		assert.True(t, seg.Selected || seg.Order != nil)
	}
}

func TestSelectedOrdered_NeverIncludesUnselectedUnordered(t *testing.T) {
	s := sampleState().ToggleSelect("ad:a").ToggleSelect("ad:a").ToggleSelect("win:0-30")
	for _, seg := range s.SelectedOrdered() {
		assert.True(t, seg.Selected || seg.Order != nil, "segment %s", seg.ID)
	}
	assert.Len(t, s.SelectedOrdered(), 1)
}

func TestSelected_DropsOrderedButDeselected(t *testing.T) {
	s := sampleState().ApplyComposition([]Placement{
		{ID: "win:0-30", Order: 0, TimelineStart: 0, TimelineEnd: 30},
		{ID: "ad:b", Order: 1, TimelineStart: 30, TimelineEnd: 45},
	})
	s = s.ToggleSelect("win:0-30")

	assert.Equal(t, []string{"ad:b"}, ids(s.Selected()))
	assert.Empty(t, sampleState().Selected())
}

func TestApplyComposition(t *testing.T) {
	s := sampleState().ApplyComposition([]Placement{
		{ID: "ad:a", Order: 0, TimelineStart: 0, TimelineEnd: 10},
		{ID: "nope", Order: 1, TimelineStart: 10, TimelineEnd: 20},
	})

	seg, _ := s.Find("ad:a")
	assert.True(t, seg.Selected)
	require.NotNil(t, seg.Order)
	assert.Equal(t, 0, *seg.Order)
	require.NotNil(t, seg.TimelineEnd)
	assert.Equal(t, 10.0, *seg.TimelineEnd)

	untouched, _ := s.Find("win:0-30")
	assert.False(t, untouched.Selected)
	assert.Nil(t, untouched.Order)
	assert.Equal(t, 0.0, untouched.Start)
	assert.Equal(t, 30.0, untouched.End)
}

func TestRegenerate_CarriesSelectionByID(t *testing.T) {
	s := sampleState().
		ToggleSelect("ad:a").
		ApplyComposition([]Placement{{ID: "win:30-60", Order: 0, TimelineStart: 0, TimelineEnd: 30}}).
		RecordScore("ad:a", 72)

	ads := []AdAsset{
		{ID: "a", Name: "A", DurationSeconds: 10},
		{ID: "c", Name: "C", DurationSeconds: 5},
	}
	next := s.Regenerate(Generate(90, nil, ads, 30))

	assert.Equal(t, []string{"ad:a", "ad:c", "win:0-30", "win:30-60", "win:60-90"}, ids(next.Segments()))

	a, _ := next.Find("ad:a")
	assert.True(t, a.Selected)
	require.NotNil(t, a.Confidence)
	assert.Equal(t, 72.0, *a.Confidence)

	w, _ := next.Find("win:30-60")
	assert.True(t, w.Selected)
	require.NotNil(t, w.Order)

	c, _ := next.Find("ad:c")
	assert.False(t, c.Selected)
}

func TestRecordScore_KeepsMaximum(t *testing.T) {
	s := sampleState().RecordScore("ad:a", 40).RecordScore("ad:a", 85).RecordScore("ad:a", 60)

	seg, _ := s.Find("ad:a")
	require.NotNil(t, seg.Confidence)
	assert.Equal(t, 85.0, *seg.Confidence)

	ignored := s.RecordScore("win:0-30", 99)
	w, _ := ignored.Find("win:0-30")
	assert.Nil(t, w.Confidence)
}

func TestRemoveAsset(t *testing.T) {
	s := sampleState().RemoveAsset("a")

	assert.Equal(t, []string{"ad:b", "win:0-30", "win:30-60", "win:60-65"}, ids(s.Segments()))
	assert.Equal(t, 4, s.RemoveAsset("zzz").Len())
}

func TestSegment_Playable(t *testing.T) {
	assert.True(t, Segment{Kind: KindTimeWindow, Start: 0, End: 1}.Playable())
	assert.False(t, Segment{Kind: KindTimeWindow, Start: 1, End: 1}.Playable())
	assert.False(t, Segment{Kind: KindAIDetected, Start: -1, End: 1}.Playable())
	assert.True(t, Segment{Kind: KindAdvertisement, AssetID: "a"}.Playable())
	assert.False(t, Segment{Kind: KindAdvertisement}.Playable())
}

func TestToggleSelect_ReselectedSegmentDoesNotDuplicateOrder(t *testing.T) {
	s := sampleState().
		ApplyComposition([]Placement{
			{ID: "win:0-30", Order: 0, TimelineStart: 0, TimelineEnd: 30},
			{ID: "win:30-60", Order: 1, TimelineStart: 30, TimelineEnd: 60},
		}).
		ToggleSelect("win:0-30").
		ToggleSelect("win:60-65").
		ApplyComposition([]Placement{
			{ID: "win:30-60", Order: 0, TimelineStart: 0, TimelineEnd: 30},
			{ID: "win:60-65", Order: 1, TimelineStart: 30, TimelineEnd: 35},
		}).
		ToggleSelect("win:0-30")

	seen := make(map[int]string)
	for _, seg := range s.Selected() {
		if seg.Order == nil {
			continue
		}
		prev, dup := seen[*seg.Order]
		assert.False(t, dup, "order %d held by %s and %s", *seg.Order, prev, seg.ID)
		seen[*seg.Order] = seg.ID
	}
	assert.Equal(t, []string{"win:30-60", "win:60-65", "win:0-30"}, ids(s.Selected()))

	reselected, _ := s.Find("win:0-30")
	assert.Nil(t, reselected.Order)
	assert.Nil(t, reselected.TimelineStart)
	assert.Nil(t, reselected.TimelineEnd)
}

func TestToggleSelect_ReselectedSegmentKeepsFreeOrder(t *testing.T) {
	s := sampleState().
		ApplyComposition([]Placement{
			{ID: "ad:a", Order: 0, TimelineStart: 0, TimelineEnd: 10},
			{ID: "win:0-30", Order: 1, TimelineStart: 10, TimelineEnd: 40},
		}).
		ToggleSelect("ad:a").
		ToggleSelect("ad:a")

	a, _ := s.Find("ad:a")
	require.NotNil(t, a.Order)
	assert.Equal(t, 0, *a.Order)
	assert.Equal(t, []string{"ad:a", "win:0-30"}, ids(s.Selected()))
}

func TestApplyComposition_ClearsCollidingOrderOfUnplacedSegment(t *testing.T) {
	s := sampleState().
		ApplyComposition([]Placement{{ID: "ad:b", Order: 0, TimelineStart: 0, TimelineEnd: 15}}).
		ApplyComposition([]Placement{{ID: "win:0-30", Order: 0, TimelineStart: 0, TimelineEnd: 30}})

	b, _ := s.Find("ad:b")
	assert.True(t, b.Selected)
	assert.Nil(t, b.Order)
	assert.Equal(t, []string{"win:0-30", "ad:b"}, ids(s.Selected()))
}
