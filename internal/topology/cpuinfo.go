package topology

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	processorToken = "processor"
	processorField = 2 // "processor", ":", "<id>"
)

// ParseOnlineThreads collects one thread id per "processor" line, in file order.
func ParseOnlineThreads(r io.Reader) ([]ThreadID, error) {
	var threads []ThreadID
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, processorToken) {
			continue
		}

		id, err := parseProcessorLine(line)
		if err != nil {
			return nil, err
		}
		threads = append(threads, id)
	}

	return threads, scanner.Err()
}

func parseProcessorLine(line string) (ThreadID, error) {
	fields := strings.Fields(line)
	if len(fields) <= processorField {
		return 0, fmt.Errorf("insufficient fields in %q: %d", line, len(fields))
	}

	n, err := strconv.Atoi(fields[processorField])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid processor id %q", fields[processorField])
	}
	return ThreadID(n), nil
}
