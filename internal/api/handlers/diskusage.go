package handlers

import (
	"fmt"
	"syscall"
)

// DiskUsage возвращает DiskUsageFunc для файловой системы, содержащей path.
func DiskUsage(path string) DiskUsageFunc {
	return func() (total, used, available int64, err error) {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
		}

		total = int64(stat.Blocks) * int64(stat.Bsize)
		available = int64(stat.Bavail) * int64(stat.Bsize)
		used = total - available
		return total, used, available, nil
	}
}
