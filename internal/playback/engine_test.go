package playback

import (
	"testing"
)

func TestRender_PlaysAtScheduledOffset(t *testing.T) {
	e := NewEngine(nil)
	e.Schedule([]int16{1, 2, 3}, 2, nil)

	out := make([]int16, 6)
	e.Render(out)
	want := []int16{0, 0, 1, 2, 3, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], out[i])
		}
	}
	if e.Now() != 6 {
		t.Fatalf("expected clock at frame 6, got %d", e.Now())
	}
}

func TestRender_ClipSpansBuffersAndEndsOnce(t *testing.T) {
	e := NewEngine(nil)
	var endedCount int
	e.Schedule([]int16{5, 5, 5, 5, 5}, 0, func() { endedCount++ })

	out := make([]int16, 3)
	e.Render(out)
	if endedCount != 0 {
		t.Fatal("clip ended before its last sample was rendered")
	}
	e.Render(out)
	if out[0] != 5 || out[1] != 5 || out[2] != 0 {
		t.Fatalf("unexpected second buffer: %v", out)
	}
	e.Render(out)
	e.Render(out)
	if endedCount != 1 {
		t.Fatalf("expected one completion, got %d", endedCount)
	}
	if e.Pending() != 0 {
		t.Fatalf("expected no pending voices, got %d", e.Pending())
	}
}

func TestSchedule_PastInstantStartsNow(t *testing.T) {
	e := NewEngine(nil)
	e.Render(make([]int16, 4))
	e.Schedule([]int16{7}, 1, nil)

	out := make([]int16, 2)
	e.Render(out)
	if out[0] != 7 {
		t.Fatalf("expected late clip to start immediately, got %v", out)
	}
}

func TestStop_SilencesWithoutCompletion(t *testing.T) {
	e := NewEngine(nil)
	ended := false
	v := e.Schedule([]int16{9, 9, 9, 9}, 0, func() { ended = true })

	out := make([]int16, 2)
	e.Render(out)
	v.Stop()
	e.Render(out)
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("expected silence after stop, got %v", out)
	}
	if ended {
		t.Fatal("stopped clip must not report completion")
	}
	v.Stop()
}

func TestRender_OverlappingClipsMixAndTap(t *testing.T) {
	var tapped []int16
	e := NewEngine(func(rendered []int16) {
		tapped = append(tapped, rendered...)
	})
	e.Schedule([]int16{30000, 1}, 0, nil)
	e.Schedule([]int16{30000, 1}, 0, nil)

	out := make([]int16, 2)
	e.Render(out)
	if out[0] != 32767 || out[1] != 2 {
		t.Fatalf("unexpected mix: %v", out)
	}
	if len(tapped) != 2 || tapped[0] != 32767 {
		t.Fatalf("tap did not receive rendered audio: %v", tapped)
	}
}

func TestSchedule_BackToBackOddLengthsNeitherGapNorOverlap(t *testing.T) {
	e := NewEngine(nil)
	var next int64
	for clip := int16(1); clip <= 3; clip++ {
		pcm := make([]int16, 1001)
		for i := range pcm {
			pcm[i] = clip
		}
		e.Schedule(pcm, next, nil)
		next += int64(len(pcm))
	}

	out := make([]int16, 4000)
	e.Render(out)
	for i := 0; i < 3003; i++ {
		want := int16(i/1001 + 1)
		if out[i] != want {
			t.Fatalf("frame %d: expected clip %d alone, got %d", i, want, out[i])
		}
	}
	for i := 3003; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("frame %d: expected silence after the last clip, got %d", i, out[i])
		}
	}
}
