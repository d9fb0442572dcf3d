//go:build linux

package ports

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const tcpListen = "0A"

// Owner resolves the pid of the process listening on port. It returns 0 with
// a nil error when no owner can be determined, which happens for listeners in
// other network namespaces or processes this user may not inspect.
func Owner(port int) (int, error) {
	var inodes []uint64
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		found, err := listenInodes(table, port)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		inodes = append(inodes, found...)
	}
	if len(inodes) == 0 {
		return 0, nil
	}

	want := make(map[string]struct{}, len(inodes))
	for _, inode := range inodes {
		want[fmt.Sprintf("socket:[%d]", inode)] = struct{}{}
	}
	return scanFDs(want), nil
}

// listenInodes collects socket inodes of LISTEN entries bound to port.
func listenInodes(table string, port int) ([]uint64, error) {
	f, err := os.Open(table)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var inodes []uint64
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 || fields[3] != tcpListen {
			continue
		}
		local := fields[1]
		sep := strings.LastIndexByte(local, ':')
		if sep < 0 {
			continue
		}
		entryPort, err := strconv.ParseUint(local[sep+1:], 16, 16)
		if err != nil || int(entryPort) != port {
			continue
		}
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil {
			continue
		}
		inodes = append(inodes, inode)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return inodes, nil
}

// scanFDs walks /proc/<pid>/fd looking for a process holding one of the
// socket inodes. Unreadable entries are skipped; the scan is best effort.
func scanFDs(want map[string]struct{}) int {
	procs, err := os.ReadDir("/proc")
	if err != nil {
		return 0
	}
	for _, entry := range procs {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if _, ok := want[target]; ok {
				return pid
			}
		}
	}
	return 0
}
