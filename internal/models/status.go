package models

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusEnRoute    Status = "en_route"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// progression is the forward order of a request. Cancelled sits outside it.
var progression = []Status{
	StatusPending,
	StatusAccepted,
	StatusEnRoute,
	StatusArrived,
	StatusInProgress,
	StatusCompleted,
}

// AllowedTransitions is the request state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusEnRoute, StatusCancelled},
	StatusEnRoute:    {StatusArrived, StatusCancelled},
	StatusArrived:    {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Rank is the position of s in the forward order, or -1 for cancelled and
// unknown values.
func (s Status) Rank() int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// Next returns the immediate forward successor of s.
func (s Status) Next() (Status, bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(progression) {
		return "", false
	}
	return progression[r+1], true
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

func (s Status) Active() bool { return s.Rank() >= 0 && !s.Terminal() }

func (s Status) Cancellable() bool { return CanTransition(s, StatusCancelled) }

func (s Status) Valid() bool { return s == StatusCancelled || s.Rank() >= 0 }

// Threshold is the elapsed time since creation that must be exceeded before
// the scheduler moves a request into Status.
type Threshold struct {
	Status Status
	After  time.Duration
}

var Thresholds = []Threshold{
	{StatusAccepted, 1 * time.Minute},
	{StatusEnRoute, 2 * time.Minute},
	{StatusArrived, 4 * time.Minute},
	{StatusInProgress, 6 * time.Minute},
	{StatusCompleted, 8 * time.Minute},
}

// StatusForElapsed returns the furthest status implied by the time elapsed
// since creation. Thresholds are strict: exactly one minute is still pending.
func StatusForElapsed(elapsed time.Duration) Status {
	s := StatusPending
	for _, t := range Thresholds {
		if elapsed > t.After {
			s = t.Status
		}
	}
	return s
}

// ThresholdFor returns the elapsed-time threshold that leads into s.
func ThresholdFor(s Status) (time.Duration, bool) {
	for _, t := range Thresholds {
		if t.Status == s {
			return t.After, true
		}
	}
	return 0, false
}

var statusMessages = map[Status]string{
	StatusPending:    "Service request submitted",
	StatusAccepted:   "Provider has accepted your request",
	StatusEnRoute:    "Provider is on the way to your location",
	StatusArrived:    "Provider has arrived",
	StatusInProgress: "Service is in progress",
	StatusCompleted:  "Service completed successfully",
	StatusCancelled:  "Service cancelled",
}

func (s Status) Message() string { return statusMessages[s] }
