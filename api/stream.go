package api

// MsgType tags every streamed judging message.
type MsgType string

const (
	StartedJudgingMsg  MsgType = "started_judging"
	ReachedTestMsg     MsgType = "reached_test"
	IgnoredTestMsg     MsgType = "ignored_test"
	FinishedTestMsg    MsgType = "finished_test"
	FinishedJudgingMsg MsgType = "finished_judging"
)

// Reported runtime data is trimmed to this rectangle before it leaves
// the harness.
const (
	MaxRunDataHeight = 40
	MaxRunDataWidth  = 80
)

// Header is common to all streamed judging messages.
type Header struct {
	JudgeUuid string  `json:"judge_uuid"`
	MsgType   MsgType `json:"msg_type"`
}

// RunData is one program invocation on the wire.
type RunData struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`

	CpuMillis  int64 `json:"cpu_millis"`
	WallMillis int64 `json:"wall_millis"`
	MemoryKiB  int64 `json:"memory_kib"`

	ExitSignal *int64 `json:"exit_signal"`
	Status     string `json:"status"`
}

type StartedJudging struct {
	Header
	NumTests int `json:"num_tests"`
}

type ReachedTest struct {
	Header
	TestId int64 `json:"test_id"`
}

type IgnoredTest struct {
	Header
	TestId int64 `json:"test_id"`
}

type FinishedTest struct {
	Header
	TestId   int64    `json:"test_id"`
	Verdict  string   `json:"verdict"`
	Message  string   `json:"message,omitempty"`
	Solution *RunData `json:"solution"`
	Checker  *RunData `json:"checker"`
}

type FinishedJudging struct {
	Header
	Overall       string  `json:"overall"`
	ErrorMessage  *string `json:"error_message"`
	InternalError bool    `json:"internal_error"`
}
