package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the open file limit the watcher needs for large
// trees.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft RLIMIT_NOFILE. A low limit only
// degrades watching, so the check is not required.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to read the open file limit: %v", err)
		return result
	}
	result.Message = fmt.Sprintf("%d (minimum: %d)", rl.Cur, MinFileDescriptors)
	if rl.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 10240' before 'amanfind watch'"
		return result
	}
	result.Status = StatusPass
	return result
}
