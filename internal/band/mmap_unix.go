//go:build unix

package band

import (
	"os"
	"syscall"
)

// mapFile memory-maps a file read-only. The file can be closed afterwards.
func mapFile(f *os.File, size int) ([]byte, bool, error) {
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ, syscall.MAP_PRIVATE)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func unmapFile(data []byte) error {
	return syscall.Munmap(data)
}
