package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hyperengineering/goalboard/internal/validation"
	"github.com/spf13/cobra"
)

var (
	achievementDate string
	achievementDesc string
)

var achievementCmd = &cobra.Command{
	Use:   "achievement",
	Short: "Record or remove achievements",
}

var achievementAddCmd = &cobra.Command{
	Use:   "add <activity>",
	Short: "Record an achievement for an activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAchievementAdd,
}

var achievementDeleteCmd = &cobra.Command{
	Use:   "delete <activity> <record-id>",
	Short: "Remove an achievement",
	Args:  cobra.ExactArgs(2),
	RunE:  runAchievementDelete,
}

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage monthly targets",
}

var targetSetCmd = &cobra.Command{
	Use:   "set <activity> <target>",
	Short: "Set an activity's monthly target",
	Args:  cobra.ExactArgs(2),
	RunE:  runTargetSet,
}

var nameCmd = &cobra.Command{
	Use:   "name",
	Short: "Manage the display name",
}

var nameSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Set the display name",
	Args:  cobra.ExactArgs(1),
	RunE:  runNameSet,
}

func init() {
	achievementAddCmd.Flags().StringVar(&achievementDate, "date", "",
		"Achievement date, YYYY-MM-DD (default today)")
	achievementAddCmd.Flags().StringVar(&achievementDesc, "desc", "",
		"What was achieved")
	achievementAddCmd.MarkFlagRequired("desc")

	achievementCmd.AddCommand(achievementAddCmd)
	achievementCmd.AddCommand(achievementDeleteCmd)
	targetCmd.AddCommand(targetSetCmd)
	nameCmd.AddCommand(nameSetCmd)
}

// edit runs fn against a started dashboard, waits for the save and prints
// the resulting board. A save failure is reported through the notice and
// returned as an error.
func edit(cmd *cobra.Command, fn func(c *client) error) error {
	c, err := openClient(cmd, false)
	if err != nil {
		return err
	}
	defer c.close()

	if err := fn(c); err != nil {
		return err
	}
	c.dashboard.Flush()

	fmt.Fprintln(cmd.OutOrStdout(), c.render())
	if n := c.dashboard.Notice(); !n.Empty() {
		return fmt.Errorf("%s: %w", n.Message, n.Err)
	}
	return nil
}

func runAchievementAdd(cmd *cobra.Command, args []string) error {
	date := achievementDate
	if date == "" {
		date = time.Now().Format(validation.DateLayout)
	}
	return edit(cmd, func(c *client) error {
		rec, err := c.dashboard.AddAchievement(args[0], date, achievementDesc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Recorded %s\n", rec.ID)
		return nil
	})
}

func runAchievementDelete(cmd *cobra.Command, args []string) error {
	return edit(cmd, func(c *client) error {
		if !c.dashboard.DeleteAchievement(args[0], args[1]) {
			return fmt.Errorf("no achievement %s under %s", args[1], args[0])
		}
		return nil
	})
}

func runTargetSet(cmd *cobra.Command, args []string) error {
	target, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("target must be a whole number: %q", args[1])
	}
	return edit(cmd, func(c *client) error {
		return c.dashboard.SetTarget(args[0], target)
	})
}

func runNameSet(cmd *cobra.Command, args []string) error {
	return edit(cmd, func(c *client) error {
		_, err := c.dashboard.RenameUser(args[0])
		return err
	})
}
