package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinFreeBytes is the free space below which index writes are likely to
// fail mid-commit.
const MinFreeBytes = 100 * humanize.MiByte

// fdsPerIndex approximates the descriptors one open bleve index holds
// (segment files, the store and its lock).
const fdsPerIndex = 16

// MinFileDescriptors is the floor regardless of the open index cache size.
const MinFileDescriptors = 1024

// CheckDiskSpace reports free space on the filesystem holding indexRoot.
// A root that does not exist yet is measured at its nearest existing parent.
func (c *Checker) CheckDiskSpace(indexRoot string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	dir := existingAncestor(indexRoot)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat %s: %v", dir, err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)", humanize.IBytes(free), humanize.IBytes(MinFreeBytes))
	switch {
	case free < MinFreeBytes:
		result.Status = StatusFail
	case free < 10*MinFreeBytes:
		result.Status = StatusWarn
		result.Details = "large batches may exhaust the remaining space"
	default:
		result.Status = StatusPass
	}
	return result
}

// CheckFileDescriptors compares the open file limit with what the open
// index cache can hold at once.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read file descriptor limit: %v", err)
		return result
	}

	want := uint64(MinFileDescriptors)
	if need := uint64(c.openIndexes) * fdsPerIndex; need > want {
		want = need
	}
	result.Message = fmt.Sprintf("%d (wanted: %d)", rLimit.Cur, want)
	switch {
	case rLimit.Cur < MinFileDescriptors:
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
	case rLimit.Cur < want:
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("%d cached indexes may need up to %d descriptors; lower engine.open_index_cache or raise the limit",
			c.openIndexes, want)
	default:
		result.Status = StatusPass
	}
	return result
}

func existingAncestor(path string) string {
	dir := filepath.Clean(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
