package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackwatch/warden/internal/cliutil"
)

const followPollInterval = 500 * time.Millisecond

func newLogsCmd(ctx *context) *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the tail of the service log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Service.LogFile

			tail, err := cliutil.TailLines(path, lines, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, cliutil.RedactSecrets(line))
			}
			if !follow {
				return nil
			}
			return followFile(cmd, path)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines to show from the end of the log")
	cmd.Flags().BoolVar(&follow, "follow", false, "Follow log output")
	return cmd
}

// followFile polls the log file for growth and prints complete lines as they
// appear. Polling survives rotation and restart gaps where the file briefly
// disappears, which an inode watch would not.
func followFile(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	offset := int64(0)
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	var pending []byte
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		size := info.Size()
		if size < offset {
			// Truncated or rotated; start over from the top.
			offset = 0
			pending = pending[:0]
		}
		if size == offset {
			continue
		}

		chunk, err := readRange(path, offset, size)
		if err != nil {
			continue
		}
		offset = size

		pending = append(pending, chunk...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			fmt.Fprintln(out, cliutil.RedactSecrets(string(pending[:i])))
			pending = pending[i+1:]
		}
	}
}

func readRange(path string, from, to int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, to-from)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}
