package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/chalkan3/democtl/pkg/config"
	"github.com/chalkan3/democtl/pkg/reset"
)

func printHeader(title string) {
	fmt.Println()
	color.New(color.FgCyan, color.Bold).Println(title)
	fmt.Println(strings.Repeat("─", len([]rune(title))+4))
}

func printSuccess(msg string) {
	color.Green("✓ %s", msg)
}

func printWarning(msg string) {
	color.Yellow("[WARN] %s", msg)
}

func printError(msg string) {
	color.Red("[ERROR] %s", msg)
}

func printInfo(msg string) {
	fmt.Println(msg)
}

// confirm asks a yes/no question on stdin. Only an explicit "y"/"yes"
// approves; EOF or an interrupt during the prompt declines, so an
// aborted confirmation never causes side effects.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// stdinConfirmer adapts confirm to the reset.Confirmer interface.
type stdinConfirmer struct{}

func (stdinConfirmer) Confirm(prompt string) bool {
	return confirm(prompt)
}

// newConfirmer honors --yes.
func newConfirmer() reset.Confirmer {
	if autoApprove {
		return reset.AutoApprove{}
	}
	return stdinConfirmer{}
}

// promptPassword reads a password without echoing it.
func promptPassword(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

// resolveConfig loads the run configuration and prints its warnings.
func resolveConfig() (*config.Config, error) {
	cfg, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		printWarning(w)
	}
	if verbose && cfg.LoadedFrom != "" {
		printInfo("Loaded configuration from " + cfg.LoadedFrom)
	}
	return cfg, nil
}
