// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"bufio"
	"io"
	"sync"
)

// lineRing keeps the last N lines of encoder stderr for diagnostics.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) add(line string) {
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// consume reads lines from rd until EOF.
func (r *lineRing) consume(rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		r.add(scanner.Text())
	}
}

// lastN returns up to n lines, oldest first.
func (r *lineRing) lastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	start := 0
	if r.full {
		count = len(r.lines)
		start = r.next
	}
	if n > count {
		n = count
	}
	out := make([]string, 0, n)
	for i := count - n; i < count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
