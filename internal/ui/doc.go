// Package ui implements the terminal dialogs shown during account lifecycle operations.
//
// [Prompt] asks yes/no questions with a small bubbletea program. Any answer other than an
// explicit yes, including dismissing the prompt, is a "no". With AssumeYes set the prompt
// answers itself, for scripted use.
//
// The package-level helpers ([Success], [Warn], [Failure], [Title], [Muted]) style plain
// command output with the same lipgloss palette.
package ui
