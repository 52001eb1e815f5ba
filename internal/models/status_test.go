package models

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusAccepted, StatusEnRoute, true},
		{StatusEnRoute, StatusArrived, true},
		{StatusArrived, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusEnRoute, StatusCancelled, true},
		// cancellation closes once the provider is on site
		{StatusArrived, StatusCancelled, false},
		{StatusInProgress, StatusCancelled, false},
		// terminal
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		// skips and backwards moves
		{StatusPending, StatusEnRoute, false},
		{StatusPending, StatusCompleted, false},
		{StatusEnRoute, StatusAccepted, false},
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusForElapsed(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    Status
	}{
		{0, StatusPending},
		{60 * time.Second, StatusPending},
		{61 * time.Second, StatusAccepted},
		{90 * time.Second, StatusAccepted},
		{2 * time.Minute, StatusAccepted},
		{2*time.Minute + time.Second, StatusEnRoute},
		{4*time.Minute + time.Second, StatusArrived},
		{6*time.Minute + time.Second, StatusInProgress},
		{8 * time.Minute, StatusInProgress},
		{8*time.Minute + time.Millisecond, StatusCompleted},
		{time.Hour, StatusCompleted},
	}
	for _, tc := range cases {
		if got := StatusForElapsed(tc.elapsed); got != tc.want {
			t.Errorf("StatusForElapsed(%s) = %s, want %s", tc.elapsed, got, tc.want)
		}
	}
}

func TestStatusNextAndRank(t *testing.T) {
	s := StatusPending
	seen := []Status{s}
	for {
		n, ok := s.Next()
		if !ok {
			break
		}
		if n.Rank() != s.Rank()+1 {
			t.Fatalf("rank of %s = %d, want %d", n, n.Rank(), s.Rank()+1)
		}
		seen = append(seen, n)
		s = n
	}
	if len(seen) != 6 || seen[5] != StatusCompleted {
		t.Fatalf("unexpected progression %v", seen)
	}
	if _, ok := StatusCancelled.Next(); ok {
		t.Fatal("cancelled must have no successor")
	}
	if StatusCancelled.Active() || StatusCompleted.Active() || !StatusArrived.Active() {
		t.Fatal("Active() disagrees with terminal statuses")
	}
}

func TestCloneIsDeep(t *testing.T) {
	tip := 5.0
	r := &ServiceRequest{
		ID:       "r1",
		Timeline: []TimelineEvent{{Status: StatusPending}},
		Tip:      &tip,
		Provider: Provider{Specialties: []string{"Towing"}},
	}
	c := r.Clone()
	c.Timeline = append(c.Timeline, TimelineEvent{Status: StatusAccepted})
	c.Timeline[0].Message = "changed"
	*c.Tip = 10
	c.Provider.Specialties[0] = "Lockout"

	if len(r.Timeline) != 1 || r.Timeline[0].Message != "" {
		t.Fatalf("timeline shared with clone: %+v", r.Timeline)
	}
	if *r.Tip != 5 {
		t.Fatalf("tip shared with clone: %v", *r.Tip)
	}
	if r.Provider.Specialties[0] != "Towing" {
		t.Fatal("specialties shared with clone")
	}
}
