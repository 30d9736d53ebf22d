// Package cli is the stockpilot command line: cobra commands, survey prompts
// and lipgloss rendering on top of pkg/app.
package cli
