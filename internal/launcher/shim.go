package launcher

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Commands exposed by every install, primary name first.
var Commands = []string{"knl", "kn"}

// ShimName is the launcher file name for a command on goos.
func ShimName(command, goos string) string {
	if goos == "windows" {
		return command + ".cmd"
	}
	return command
}

// Shim renders the launcher script for target on goos. Both variants
// forward every argument and propagate the exit code.
func Shim(target, goos string) (string, error) {
	if goos == "windows" {
		return windowsShim(target)
	}
	return posixShim(target)
}

func posixShim(target string) (string, error) {
	quoted, err := syntax.Quote(target, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quote launcher target: %w", err)
	}
	content := "#!/bin/sh\n" +
		"# Generated by knl-setup. Regenerated on every install.\n" +
		"exec " + quoted + " \"$@\"\n"

	if err := validatePOSIX(content); err != nil {
		return "", err
	}
	return content, nil
}

func validatePOSIX(content string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(content), "launcher"); err != nil {
		return fmt.Errorf("generated launcher is not valid sh: %w", err)
	}
	return nil
}

func windowsShim(target string) (string, error) {
	if strings.ContainsAny(target, "\"\r\n%") {
		return "", fmt.Errorf("launcher target %q cannot be expressed in a batch file", target)
	}
	lines := []string{
		"@echo off",
		"rem Generated by knl-setup. Regenerated on every install.",
		`"` + target + `" %*`,
		"exit /b %ERRORLEVEL%",
	}
	return strings.Join(lines, "\r\n") + "\r\n", nil
}
