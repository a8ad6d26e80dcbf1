package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/congo-pay/walletsync/internal/transfer"
	"github.com/congo-pay/walletsync/internal/view"
)

// newStdinPrompt asks the operator's terminal for transfer amounts. An empty
// line accepts the default; end of input cancels.
func newStdinPrompt(in io.Reader, out io.Writer) view.PromptFunc {
	var mu sync.Mutex
	scanner := bufio.NewScanner(in)
	return func() (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "Amount [%s]: ", transfer.DefaultAmount)
		if !scanner.Scan() {
			return "", false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return transfer.DefaultAmount, true
		}
		return line, true
	}
}
