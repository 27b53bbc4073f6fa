package verdict

import "fmt"

// Verdict classifies a submission's behavior on a single test case.
// The ordinal value doubles as severity: a larger value is strictly
// worse, which is what Worst relies on when aggregating a session.
type Verdict int

const (
	Accepted Verdict = iota
	PresentationError
	WrongAnswer
	TimeLimitExceeded
	MemoryLimitExceeded
	RuntimeError
	ValidationFailed
	CompilationError
	InternalError
)

var names = map[Verdict]string{
	Accepted:            "accepted",
	PresentationError:   "presentation-error",
	WrongAnswer:         "wrong-answer",
	TimeLimitExceeded:   "time-limit-exceeded",
	MemoryLimitExceeded: "memory-limit-exceeded",
	RuntimeError:        "runtime-error",
	ValidationFailed:    "validation-failed",
	CompilationError:    "compilation-error",
	InternalError:       "internal-error",
}

func (v Verdict) String() string {
	if s, ok := names[v]; ok {
		return s
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

func (v Verdict) MarshalText() ([]byte, error) {
	s, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("unknown verdict: %d", int(v))
	}
	return []byte(s), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	for k, s := range names {
		if s == string(text) {
			*v = k
			return nil
		}
	}
	return fmt.Errorf("unknown verdict: %q", string(text))
}

// Worst returns the maximum-severity verdict of the slice,
// or Accepted for an empty slice.
func Worst(verdicts []Verdict) Verdict {
	worst := Accepted
	for _, v := range verdicts {
		if v > worst {
			worst = v
		}
	}
	return worst
}
