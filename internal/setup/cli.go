package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CLI provides command-line interface for setup operations.
type CLI struct {
	ConfigPath string // overrides the platform default when set
	out        io.Writer
	reader     *bufio.Reader
}

// NewCLI creates a new setup CLI instance.
func NewCLI(in io.Reader, out io.Writer) *CLI {
	return &CLI{out: out, reader: bufio.NewReader(in)}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	rest, err := c.globalFlags(args[1:])
	if err != nil {
		return err
	}

	switch args[0] {
	case "claude-desktop":
		return c.setupClaudeDesktop(rest)
	case "remove":
		return c.remove()
	case "status":
		return c.showStatus()
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

func (c *CLI) globalFlags(args []string) ([]string, error) {
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--config needs a path")
			}
			c.ConfigPath = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	if c.ConfigPath == "" {
		path, err := ClaudeDesktopConfigPath()
		if err != nil {
			return nil, err
		}
		c.ConfigPath = path
	}
	return rest, nil
}

func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `cohortgen MCP server setup

Usage:
  cohortgen-mcp setup <command> [options]

Commands:
  claude-desktop  Register the server with Claude Desktop
  remove          Remove the server from Claude Desktop
  status          Show current setup status

Options:
  --config PATH      Claude Desktop config file (default: platform location)
  --binary PATH      Server binary (default: this executable)
  --data-dir PATH    Run store and export directory
  --rule-set NAME    Default rule set for tool calls
  --yes              Do not ask for confirmation
`)
	return nil
}

func (c *CLI) setupClaudeDesktop(args []string) error {
	var opts Options
	autoConfirm := false

	for i := 0; i < len(args); i++ {
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}
		switch args[i] {
		case "--binary", "-b":
			opts.BinaryPath = next()
		case "--data-dir", "-d":
			opts.DataDir = next()
		case "--rule-set":
			opts.RuleSet = next()
		case "--log-level":
			opts.LogLevel = next()
		case "--yes", "-y":
			autoConfirm = true
		default:
			return fmt.Errorf("unknown option: %s", args[i])
		}
	}

	if opts.BinaryPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}
		opts.BinaryPath = execPath
	}

	fmt.Fprintf(c.out, "Config file:   %s\n", c.ConfigPath)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.DataDir != "" {
		fmt.Fprintf(c.out, "Data dir:      %s\n", opts.DataDir)
	}

	if !autoConfirm {
		fmt.Fprint(c.out, "Proceed? [Y/n]: ")
		response, _ := c.reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			fmt.Fprintln(c.out, "Cancelled.")
			return nil
		}
	}

	if _, err := Configure(c.ConfigPath, opts); err != nil {
		return fmt.Errorf("failed to configure Claude Desktop: %w", err)
	}

	fmt.Fprintln(c.out, "Claude Desktop configured. Restart it and ask for a synthetic knee-implant cohort.")
	return nil
}

func (c *CLI) remove() error {
	removed, err := Remove(c.ConfigPath)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(c.out, "Removed cohortgen from Claude Desktop.")
	} else {
		fmt.Fprintln(c.out, "cohortgen was not configured.")
	}
	return nil
}

func (c *CLI) showStatus() error {
	status, err := GetStatus(c.ConfigPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config file: %s\n", status.ConfigPath)
	if status.Configured {
		fmt.Fprintf(c.out, "Configured:  yes (%s)\n", status.ServerPath)
	} else {
		fmt.Fprintln(c.out, "Configured:  no")
	}
	fmt.Fprintf(c.out, "Data dir:    %s\n", status.DataDir)
	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "  ! %s\n", issue)
	}
	return nil
}
