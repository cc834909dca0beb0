package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// ConfigManager inspects and edits a station's service configuration.
type ConfigManager struct {
	Station deploy.Station
	Exec    *deploy.Executor
}

// Show displays the current configuration
func (c *ConfigManager) Show() error {
	fmt.Printf("Current %s configuration:\n", c.Station.ServiceName)
	fmt.Println()

	// Show unit file
	fmt.Println("=== Service Configuration ===")
	serviceOutput, err := c.Exec.RunSudo(fmt.Sprintf("cat %s", c.Station.UnitPath()))
	if err != nil {
		return fmt.Errorf("failed to read service file: %w", err)
	}
	fmt.Println(serviceOutput)

	// Show tuning config
	fmt.Println("\n=== Tuning Config ===")
	tuningOutput, err := c.Exec.Run(fmt.Sprintf("cat %s 2>/dev/null || echo '(no tuning config)'", c.Station.ConfigFile()))
	if err != nil {
		fmt.Printf("Warning: could not read tuning config: %v\n", err)
	} else {
		fmt.Println(tuningOutput)
	}

	// Show data directory info
	fmt.Println("\n=== Data Directory ===")
	dataInfo, err := c.Exec.RunSudo(fmt.Sprintf("ls -lh %s/", c.Station.DataDir))
	if err != nil {
		fmt.Printf("Warning: could not read data directory: %v\n", err)
	} else {
		fmt.Println(dataInfo)
	}

	// Show service status
	fmt.Println("\n=== Service Status ===")
	statusOutput, err := c.Exec.RunSudo(fmt.Sprintf("systemctl status %s --no-pager", c.Station.UnitName()))
	if err != nil {
		fmt.Printf("Warning: could not get service status: %v\n", err)
	} else {
		fmt.Println(statusOutput)
	}

	// Show recent logs
	fmt.Println("\n=== Recent Logs (last 10 lines) ===")
	logsOutput, err := c.Exec.RunSudo(fmt.Sprintf("journalctl -u %s -n 10 --no-pager", c.Station.UnitName()))
	if err != nil {
		fmt.Printf("Warning: could not read logs: %v\n", err)
	} else {
		fmt.Println(logsOutput)
	}

	return nil
}

// Edit allows editing the service ExecStart line
func (c *ConfigManager) Edit() error {
	fmt.Println("Interactive configuration editing")
	fmt.Println("==================================")
	fmt.Println()

	// Get current ExecStart line
	grepOutput, err := c.Exec.RunSudo(fmt.Sprintf("grep '^ExecStart=' %s", c.Station.UnitPath()))
	if err != nil {
		return fmt.Errorf("failed to read service file: %w", err)
	}

	currentExecStart := strings.TrimSpace(grepOutput)
	fmt.Printf("Current ExecStart:\n%s\n\n", currentExecStart)

	fmt.Println("Common daemon flags:")
	fmt.Println("  -iface IFACE       Capture interface (default: eth0)")
	fmt.Println("  -listen :PORT      Web server address (default: :8080)")
	fmt.Println("  -burst-size N      Packets per burst (0 = tuning value)")
	fmt.Println("  -batch-size N      Poll batch size (0 = tuning value)")
	fmt.Println("  -capacity N        Timestamp store capacity (0 = tuning value)")
	fmt.Println("  -o FILE            Output file for measured differences")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Printf("  ExecStart=%s -iface eth1 -db %s -config %s -listen :9090\n",
		c.Station.BinaryPath, c.Station.DatabaseFile(), c.Station.ConfigFile())
	fmt.Println()
	fmt.Print("Enter new ExecStart line (or press Enter to keep current): ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	input = strings.TrimSpace(input)

	if input == "" {
		fmt.Println("No changes made")
		return nil
	}

	newExecStart, err := validateExecStart(input)
	if err != nil {
		return err
	}

	// Update the unit file with line editing rather than sed on user input
	fmt.Println("\nUpdating service file...")

	contents, err := c.Exec.RunSudo(fmt.Sprintf("cat %s", c.Station.UnitPath()))
	if err != nil {
		return fmt.Errorf("failed to read service file: %w", err)
	}

	newContents, err := rewriteExecStart(contents, newExecStart)
	if err != nil {
		return err
	}

	tmpPath := "/tmp/precision.service.tmp"
	if err := c.Exec.WriteFile(tmpPath, newContents); err != nil {
		return fmt.Errorf("failed to write temporary service file: %w", err)
	}

	_, err = c.Exec.RunSudo(fmt.Sprintf("mv %s %s", tmpPath, c.Station.UnitPath()))
	if err != nil {
		return fmt.Errorf("failed to update service file: %w", err)
	}

	fmt.Println("Reloading systemd...")
	_, err = c.Exec.RunSudo("systemctl daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	// Ask if user wants to restart service
	fmt.Print("\nRestart service now to apply changes? [y/N]: ")
	var restart string
	fmt.Scanln(&restart)

	if strings.ToLower(restart) == "y" {
		fmt.Println("Restarting service...")
		_, err = c.Exec.RunSudo(fmt.Sprintf("systemctl restart %s", c.Station.UnitName()))
		if err != nil {
			return fmt.Errorf("failed to restart service: %w", err)
		}

		c.Exec.Run("sleep 2")

		statusOutput, err := c.Exec.Run(fmt.Sprintf("systemctl is-active %s", c.Station.UnitName()))
		if err != nil || strings.TrimSpace(statusOutput) != "active" {
			fmt.Println("⚠ Warning: Service may not have started properly")
			fmt.Println("Check status with: precision-deploy status")
			return nil
		}

		fmt.Println("  ✓ Service restarted successfully")
	} else {
		fmt.Println("Configuration updated. Restart service to apply changes:")
		fmt.Printf("  sudo systemctl restart %s\n", c.Station.UnitName())
	}

	return nil
}

// validateExecStart normalizes and checks a user-supplied ExecStart
// line. The line ends up in a root-owned unit file, so shell
// metacharacters are rejected outright.
func validateExecStart(line string) (string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "ExecStart=") {
		line = "ExecStart=" + line
	}
	if strings.ContainsAny(line, "|;&$`\\\"'") {
		return "", fmt.Errorf("invalid ExecStart line: contains disallowed characters")
	}
	return line, nil
}

// rewriteExecStart replaces the ExecStart line in a unit file.
func rewriteExecStart(contents, newExecStart string) (string, error) {
	lines := strings.Split(contents, "\n")
	found := false
	for i, line := range lines {
		if strings.HasPrefix(line, "ExecStart=") {
			lines[i] = newExecStart
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("ExecStart line not found in service file")
	}
	return strings.Join(lines, "\n"), nil
}
