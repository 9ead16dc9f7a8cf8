// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides prompt and line-clearing helpers.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ClearPreviousLines clears textLength characters of previously printed text,
// plus the empty line the cursor moved to when the user pressed Enter.
func ClearPreviousLines(textLength int) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}
	totalLines := max(1, int(math.Ceil(float64(textLength)/float64(termWidth))))
	linesToClear := totalLines + 1
	for i := 0; i < linesToClear; i++ {
		fmt.Print("\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Print("\x1b[1A")
		}
	}
}

// ReadSecret prints prompt and reads a line without echo. When stdin is not a
// terminal the line is read as is, so tokens can be piped in.
func ReadSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	ClearPreviousLines(len(prompt))
	return strings.TrimSpace(string(b)), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
