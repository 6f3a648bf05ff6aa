package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var boardJSONOutput bool

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the monthly dashboard",
	Args:  cobra.NoArgs,
	RunE:  runBoard,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the dashboard and redraw it on every change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	boardCmd.Flags().BoolVar(&boardJSONOutput, "json", false, "Output in JSON format")
}

type boardActivity struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Target          int     `json:"target"`
	Actual          int     `json:"actual"`
	ProgressPercent float64 `json:"progress_percent"`
}

func runBoard(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer c.close()

	if boardJSONOutput {
		d := c.dashboard
		items := make([]boardActivity, 0, len(d.Activities()))
		for _, a := range d.Activities() {
			items = append(items, boardActivity{
				ID:              a.ID,
				Name:            a.Name,
				Target:          a.Target,
				Actual:          a.ActualCount(),
				ProgressPercent: a.ProgressPercent(),
			})
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"user_id":    d.UserID(),
			"user_name":  d.UserName(),
			"activities": items,
			"notice":     d.Notice().Message,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), c.render())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	cmd.SetContext(ctx)

	c, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer c.close()

	out := cmd.OutOrStdout()
	for {
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprintln(out, c.render())
		select {
		case <-ctx.Done():
			return nil
		case <-c.dashboard.Changes():
		}
	}
}
