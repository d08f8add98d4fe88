package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Prompt  = color.New(color.FgGreen, color.Bold)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)

	// Highlight marks the word currently being spoken.
	Highlight = color.New(color.FgBlack, color.BgYellow, color.Bold)
	Muted     = color.New(color.Faint)
)
