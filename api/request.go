package api

// JudgeReq is one submission evaluation request as received from the
// request queue.
type JudgeReq struct {
	JudgeUuid string `json:"judge_uuid"`

	Code     string    `json:"code"`
	Language Language  `json:"language"`
	Tests    []ReqTest `json:"tests"`

	// Checker and validator sources, authored against the checker
	// exit-code protocol. The validator is optional.
	Checker   string  `json:"checker"`
	Validator *string `json:"validator"`

	CpuMillis int   `json:"cpu_millis"`
	MemoryKiB int64 `json:"memory_kib"`

	StopOnFirstFailure bool `json:"stop_on_first_failure"`
	Parallelism        int  `json:"parallelism"`
	ReportPartialOut   bool `json:"report_partial_output"`

	ResQueueUrl string `json:"res_queue_url"`
}

type ReqTest struct {
	ID int64 `json:"id"`

	// Sha256 to check whether the file is already cached.
	InSha256 *string `json:"in_sha256"`
	// URL to download the file when missing from the cache.
	InUrl *string `json:"in_url"`
	// Content inline as an alternative to a URL.
	InContent *string `json:"in_content"`

	AnsSha256  *string `json:"ans_sha256"`
	AnsUrl     *string `json:"ans_url"`
	AnsContent *string `json:"ans_content"`
}

type Language struct {
	LangID        string  `json:"lang_id"`
	LangName      string  `json:"lang_name"`
	CodeFname     string  `json:"code_fname"`
	CompileCmd    *string `json:"compile_cmd"`
	CompiledFname *string `json:"compiled_fname"`
}
