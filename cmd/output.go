package cmd

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	successColor   = color.New(color.FgGreen, color.Bold)
	errorColor     = color.New(color.FgRed, color.Bold)
	infoColor      = color.New(color.FgCyan)
	boldColor      = color.New(color.Bold)
	assistantColor = color.New(color.FgMagenta, color.Bold)
)

func printSuccess(format string, args ...any) {
	successColor.Printf("✓ %s\n", fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	errorColor.Printf("✗ %s\n", fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	infoColor.Printf("ℹ %s\n", fmt.Sprintf(format, args...))
}
