package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxco/winboard"
)

const commandTimeout = 60 * time.Second

// serviceCmd starts, stops or restarts a Windows service.
var serviceCmd = &cobra.Command{
	Use:   "service <start|stop|restart> <server> <service>",
	Short: "Start, stop or restart a service",
	Long: `Send a service control command to the backend and print its answer.

Example:
  winboard service stop VXDIAL1 "Voxco Telephone Gateway" -c config.yaml
  winboard service restart VXSQL1 SQLAgent -c config.yaml`,
	Args:      cobra.ExactArgs(3),
	ValidArgs: []string{"start", "stop", "restart"},
	RunE:      runService,
}

// rebootCmd reboots a server.
var rebootCmd = &cobra.Command{
	Use:   "reboot <server>",
	Short: "Reboot a server",
	Long: `Ask the backend to reboot a server.

Example:
  winboard reboot VXCATI1 -c config.yaml
  winboard reboot VXCATI1 --force -c config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runReboot,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	addConfigFlag(serviceCmd)

	rootCmd.AddCommand(rebootCmd)
	addConfigFlag(rebootCmd)
	rebootCmd.Flags().Bool("force", false, "force the reboot even if users are logged on")
}

func runService(cmd *cobra.Command, args []string) error {
	// reject a bad action before any network traffic
	action, err := winboard.ParseServiceAction(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.ctrl.ServiceAction(ctx, action, args[1], args[2])
	if err != nil {
		return err
	}

	msg := out.Message
	if msg == "" {
		msg = fmt.Sprintf("%s %s on %s: %s", action, args[2], args[1], action.TerminalStatus())
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runReboot(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.ctrl.RebootServer(ctx, args[0], force)
	if err != nil {
		return err
	}

	msg := out.Message
	if msg == "" {
		msg = fmt.Sprintf("Server %s is rebooting", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
