package ui

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// CLI is a terminal-prompt UI implementation for the demo dispatcher
// binary: every confirmation is printed to out and answered by reading a
// line of yes/no from in.
type CLI struct {
	in  *bufio.Reader
	out io.Writer
}

// NewCLI returns a CLI UI reading prompts from in and writing to out.
func NewCLI(in io.Reader, out io.Writer) *CLI {
	return &CLI{in: bufio.NewReader(in), out: out}
}

func (c *CLI) prompt(format string, args ...interface{}) bool {
	fmt.Fprintf(c.out, format+" [y/N]: ", args...)
	line, _ := c.in.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	ok := answer == "y" || answer == "yes"
	slog.Info("ui confirmation", "prompt", fmt.Sprintf(format, args...), "accepted", ok)
	return ok
}

func (c *CLI) VerifyRecipient(address, formattedAmount string) bool {
	return c.prompt("Send %s to %s?", formattedAmount, address)
}

func (c *CLI) VerifyTotal(formattedTotal, formattedFee string) bool {
	return c.prompt("Confirm total %s (fee %s)?", formattedTotal, formattedFee)
}

func (c *CLI) ConfirmMultipleChanges(numChanges int) bool {
	return c.prompt("Transaction has %d change outputs, continue?", numChanges)
}

func (c *CLI) ConfirmLocktimeRBF(locktime uint32, rbfFlag RBFFlag) bool {
	return c.prompt("Locktime %d, RBF %s, continue?", locktime, rbfFlag)
}

func (c *CLI) Status(msg string, success bool) {
	fmt.Fprintln(c.out, msg)
	slog.Info("transaction status", "message", msg, "success", success)
}
