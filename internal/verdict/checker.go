package verdict

// Checker and validator programs communicate their outcome through
// process exit codes, following the testlib convention. This is the
// contract problem-setters author their programs against, so it is
// decoded here and nowhere else.
const (
	CheckerExitAccepted          = 0
	CheckerExitWrongAnswer       = 1
	CheckerExitPresentationError = 2
	CheckerExitFailed            = 3
)

// CheckerOutcome is the closed set of outcomes a checker can signal.
type CheckerOutcome int

const (
	CheckerAccepted CheckerOutcome = iota
	CheckerWrongAnswer
	CheckerPresentationError
	// CheckerFailed means the checker itself declared failure
	// (testlib's _fail), an authoring bug rather than a submission defect.
	CheckerFailed
	// CheckerProtocolViolation is any exit code outside the contract.
	CheckerProtocolViolation
)

// DecodeCheckerExit maps a checker's exit code to its outcome.
func DecodeCheckerExit(code int) CheckerOutcome {
	switch code {
	case CheckerExitAccepted:
		return CheckerAccepted
	case CheckerExitWrongAnswer:
		return CheckerWrongAnswer
	case CheckerExitPresentationError:
		return CheckerPresentationError
	case CheckerExitFailed:
		return CheckerFailed
	default:
		return CheckerProtocolViolation
	}
}

func (o CheckerOutcome) Verdict() Verdict {
	switch o {
	case CheckerAccepted:
		return Accepted
	case CheckerWrongAnswer:
		return WrongAnswer
	case CheckerPresentationError:
		return PresentationError
	default:
		return InternalError
	}
}

func (o CheckerOutcome) String() string {
	switch o {
	case CheckerAccepted:
		return "accepted"
	case CheckerWrongAnswer:
		return "wrong-answer"
	case CheckerPresentationError:
		return "presentation-error"
	case CheckerFailed:
		return "checker-failed"
	default:
		return "protocol-violation"
	}
}
