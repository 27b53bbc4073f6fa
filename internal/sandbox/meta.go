package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// isolateMetrics mirrors the key:value meta file isolate writes after
// each run.
type isolateMetrics struct {
	TimeSec     float64
	TimeWallSec float64
	MaxRssKiB   int64
	CgMemKiB    int64
	CgOomKilled bool
	CswVol      int64
	CswForced   int64
	ExitCode    int64
	ExitSignal  int64
	Status      string
	Message     string
}

func parseMetaFile(content []byte) (*isolateMetrics, error) {
	m := &isolateMetrics{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed meta line: %q", line)
		}

		var err error
		switch key {
		case "time":
			m.TimeSec, err = strconv.ParseFloat(value, 64)
		case "time-wall":
			m.TimeWallSec, err = strconv.ParseFloat(value, 64)
		case "max-rss":
			m.MaxRssKiB, err = strconv.ParseInt(value, 10, 64)
		case "cg-mem":
			m.CgMemKiB, err = strconv.ParseInt(value, 10, 64)
		case "cg-oom-killed":
			m.CgOomKilled = value == "1"
		case "csw-voluntary":
			m.CswVol, err = strconv.ParseInt(value, 10, 64)
		case "csw-forced":
			m.CswForced, err = strconv.ParseInt(value, 10, 64)
		case "exitcode":
			m.ExitCode, err = strconv.ParseInt(value, 10, 64)
		case "exitsig":
			m.ExitSignal, err = strconv.ParseInt(value, 10, 64)
		case "status":
			m.Status = value
		case "message":
			m.Message = value
		}
		if err != nil {
			return nil, fmt.Errorf("malformed meta value for %s: %q", key, value)
		}
	}
	return m, nil
}
