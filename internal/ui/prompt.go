package ui

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
)

// ConfigureProvider prompts the user to select an embedding provider.
func ConfigureProvider() (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Select an embedding provider:",
		Options: []string{
			"pixel (built-in, no external service)",
			"ollama (local multimodal model)",
			"clip (remote CLIP service)",
		},
		Default: "pixel (built-in, no external service)",
	}

	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}

	switch choice {
	case "ollama (local multimodal model)":
		return "ollama", nil
	case "clip (remote CLIP service)":
		return "clip", nil
	default:
		return "pixel", nil
	}
}

// PromptInput asks for a single line of input with a default.
func PromptInput(message, defaultValue string) (string, error) {
	var value string
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}

	if err := survey.AskOne(prompt, &value); err != nil {
		return "", err
	}

	return value, nil
}

// PromptPassword asks for a secret without echoing it.
func PromptPassword(message string) (string, error) {
	var value string
	prompt := &survey.Password{
		Message: message,
	}

	if err := survey.AskOne(prompt, &value); err != nil {
		return "", err
	}

	return value, nil
}

// PromptYesNo asks a yes/no question.
func PromptYesNo(message string, defaultValue bool) (bool, error) {
	var value bool
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}

	if err := survey.AskOne(prompt, &value); err != nil {
		return false, err
	}

	return value, nil
}

// ShowSection displays a section header.
func ShowSection(title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("\n%s\n", title)
}

// ShowSuccess displays a success message.
func ShowSuccess(message string) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✓ %s\n", message)
}

// ShowError displays an error message.
func ShowError(message string) {
	red := color.New(color.FgRed, color.Bold)
	red.Printf("✗ %s\n", message)
}

// ShowWarning displays a warning message.
func ShowWarning(message string) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("! %s\n", message)
}

// ShowInfo displays an info message.
func ShowInfo(message string) {
	blue := color.New(color.FgBlue)
	blue.Println(message)
}

// ShowResult prints one ranked match line.
func ShowResult(rank int, identity string, score float64) {
	fmt.Printf("  %d. %s", rank, identity)
	gray := color.New(color.FgHiBlack)
	gray.Printf("  (score %.4f)\n", score)
}
