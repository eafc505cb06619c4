package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/ipc"
)

var (
	ipcSession string
	ipcTarget  string
	ipcJSON    bool
	ipcCount   int
)

var ipcCmd = &cobra.Command{
	Use:   "ipc",
	Short: "Send control commands to a running session",
	Long: `Send spawn, list and close commands to a running veda session over its
control socket.

The session and target instance default to VEDA_SESSION_ID and
VEDA_TARGET_INSTANCE_ID, which are set for every instance subprocess. Without
a target, commands act on behalf of the main instance.`,
}

var ipcSpawnCmd = &cobra.Command{
	Use:   "spawn <task>",
	Short: "Spawn instances that split a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendIPC(cmd.Context(), ipc.SpawnInstances{
			TaskDescription: args[0],
			NumInstances:    ipcCount,
		})
	},
}

var ipcListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendIPC(cmd.Context(), ipc.ListInstances{})
	},
}

var ipcCloseCmd = &cobra.Command{
	Use:   "close <instance-name>",
	Short: "Close an instance by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendIPC(cmd.Context(), ipc.CloseInstance{InstanceName: args[0]})
	},
}

func init() {
	ipcCmd.PersistentFlags().StringVar(&ipcSession, "session", os.Getenv(agent.EnvSessionID), "Session id")
	ipcCmd.PersistentFlags().StringVar(&ipcTarget, "target", os.Getenv(agent.EnvTargetInstanceID), "Instance the command acts for")
	ipcCmd.PersistentFlags().BoolVar(&ipcJSON, "json", false, "Print the raw JSON reply")
	ipcSpawnCmd.Flags().IntVarP(&ipcCount, "num", "n", ipc.DefaultSpawnCount, "Number of instances")

	ipcCmd.AddCommand(ipcSpawnCmd, ipcListCmd, ipcCloseCmd)
}

// addressed fills the session and target fields of cmd from the flags.
func addressed(cmd ipc.Command) ipc.Command {
	var target *string
	if ipcTarget != "" {
		t := ipcTarget
		target = &t
	}
	switch c := cmd.(type) {
	case ipc.SpawnInstances:
		c.SessionID, c.TargetInstanceID = ipcSession, target
		return c
	case ipc.ListInstances:
		c.SessionID, c.TargetInstanceID = ipcSession, target
		return c
	case ipc.CloseInstance:
		c.SessionID, c.TargetInstanceID = ipcSession, target
		return c
	}
	return cmd
}

func sendIPC(ctx context.Context, cmd ipc.Command) error {
	if ipcSession == "" {
		return errors.New("no session: pass --session or set " + agent.EnvSessionID)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reply, err := ipc.NewClient(ipc.SocketPath(ipcSession)).Send(ctx, addressed(cmd))
	if err != nil {
		return err
	}

	if ipcJSON {
		data, err := json.MarshalIndent(reply, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else if reply.OK {
		fmt.Println(reply.Message)
	}

	if !reply.OK {
		if !ipcJSON {
			fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✗"), reply.Error)
		}
		return errors.New(reply.Error)
	}
	return nil
}
