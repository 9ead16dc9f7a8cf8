// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/httperrors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// FormatError renders err as a titled block with a hint derived from its kind.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	title, hints := describe(err)

	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
	b.WriteString("\n")
	for _, h := range hints {
		b.WriteString("  • " + h + "\n")
	}
	b.WriteString("\n")
	b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Details: " + Mask(err.Error())))
	return b.String()
}

func describe(err error) (string, []string) {
	if stderrors.Is(err, context.Canceled) {
		return "Cancelled", nil
	}
	switch errors.KindOf(err) {
	case errors.Auth:
		return "Authentication failed", []string{
			"Your session may have expired",
			"Run 'fhirq login' and try again",
		}
	case errors.Validation:
		return "Invalid input", []string{"Check the query file and flags"}
	case errors.Config:
		return "Invalid configuration", []string{"Inspect settings with 'fhirq config show'"}
	case errors.Cache:
		return "Result cache unavailable", []string{"Retry with --ignore-cache or run 'fhirq cache clear'"}
	case errors.Export:
		return "Export failed", []string{"Check the output path or database connection"}
	case errors.Transport:
		c := httperrors.Classify(err)
		return c.Title(), c.Hints()
	}
	return "Error", nil
}

// PresentFatal prints err to the terminal.
func PresentFatal(err error) {
	fmt.Println()
	fmt.Println(FormatError(err))
	fmt.Println()
}
