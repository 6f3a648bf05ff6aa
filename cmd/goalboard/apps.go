package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/spf13/cobra"
)

var (
	appsRootOverride string
	appsJSONOutput   bool
	compactOlderThan time.Duration
	compactForce     bool
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Inspect application namespaces",
	Long:  "List, inspect, and compact application namespaces on disk without running the server.",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all application namespaces",
	Args:  cobra.NoArgs,
	RunE:  runAppsList,
}

var appsInfoCmd = &cobra.Command{
	Use:   "info <app>",
	Short: "Show document and change-log statistics for a namespace",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsInfo,
}

var appsCompactCmd = &cobra.Command{
	Use:   "compact <app>",
	Short: "Drop old change-log entries",
	Long:  "Delete change-log entries older than --older-than, keeping the newest entry of every document. Requires --force or interactive confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsCompact,
}

func init() {
	appsCmd.PersistentFlags().StringVar(&appsRootOverride, "root", "",
		"Namespace root path (overrides config and GOALBOARD_STORES_ROOT)")
	appsCmd.PersistentFlags().BoolVar(&appsJSONOutput, "json", false,
		"Output in JSON format")

	appsCompactCmd.Flags().DurationVar(&compactOlderThan, "older-than", 30*24*time.Hour,
		"Retention window; newer entries are kept")
	appsCompactCmd.Flags().BoolVar(&compactForce, "force", false,
		"Skip confirmation prompt")

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsInfoCmd)
	appsCmd.AddCommand(appsCompactCmd)
}

// resolveManager opens the namespace root from config, or from --root.
func resolveManager(cmd *cobra.Command) (*multistore.Manager, error) {
	rootPath := appsRootOverride
	if rootPath == "" {
		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		rootPath = cfg.Stores.RootPath
	}
	return multistore.NewManager(rootPath)
}

// existingNamespace returns the on-disk entry for id. GetStore would create
// a missing namespace, which inspection commands must not do.
func existingNamespace(cmd *cobra.Command, mgr *multistore.Manager, id string) (multistore.NamespaceInfo, error) {
	if err := multistore.ValidateNamespace(id); err != nil {
		return multistore.NamespaceInfo{}, err
	}
	infos, err := mgr.ListStores(cmd.Context())
	if err != nil {
		return multistore.NamespaceInfo{}, fmt.Errorf("list namespaces: %w", err)
	}
	for _, info := range infos {
		if info.ID == id {
			return info, nil
		}
	}
	return multistore.NamespaceInfo{}, fmt.Errorf("%w: %s", multistore.ErrNamespaceNotFound, id)
}

func runAppsList(cmd *cobra.Command, args []string) error {
	mgr, err := resolveManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Close()

	infos, err := mgr.ListStores(cmd.Context())
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}

	if appsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"namespaces": infos,
			"total":      len(infos),
		})
	}

	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No namespaces found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tSIZE\tCREATED\tLAST ACCESSED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			info.ID,
			formatSize(info.SizeBytes),
			info.Created.Format("2006-01-02 15:04"),
			info.LastAccessed.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runAppsInfo(cmd *cobra.Command, args []string) error {
	mgr, err := resolveManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Close()

	info, err := existingNamespace(cmd, mgr, args[0])
	if err != nil {
		return err
	}
	ns, err := mgr.GetStore(cmd.Context(), info.ID)
	if err != nil {
		return err
	}
	stats, err := ns.Store.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if appsJSONOutput {
		return printJSON(out, map[string]any{
			"id":              info.ID,
			"created":         info.Created,
			"last_accessed":   info.LastAccessed,
			"size_bytes":      info.SizeBytes,
			"document_count":  stats.DocumentCount,
			"latest_sequence": stats.LatestSeq,
			"last_snapshot":   stats.LastSnapshot,
			"path":            ns.BasePath,
		})
	}

	fmt.Fprintf(out, "Namespace:     %s\n", info.ID)
	fmt.Fprintf(out, "Created:       %s\n", info.Created.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Last Accessed: %s\n", info.LastAccessed.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Size:          %s\n", formatSize(info.SizeBytes))
	fmt.Fprintf(out, "Documents:     %d\n", stats.DocumentCount)
	fmt.Fprintf(out, "Sequence:      %d\n", stats.LatestSeq)
	if stats.LastSnapshot != nil {
		fmt.Fprintf(out, "Snapshot:      %s\n", stats.LastSnapshot.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(out, "Snapshot:      none")
	}
	fmt.Fprintf(out, "Path:          %s\n", ns.BasePath)
	return nil
}

func runAppsCompact(cmd *cobra.Command, args []string) error {
	if compactOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	mgr, err := resolveManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Close()

	info, err := existingNamespace(cmd, mgr, args[0])
	if err != nil {
		return err
	}

	if !compactForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "WARNING: This will drop change-log history of %q older than %s.\n", info.ID, compactOlderThan)
		fmt.Fprint(errOut, "Type the namespace to confirm: ")

		input, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(input) != info.ID {
			return fmt.Errorf("confirmation did not match, aborting")
		}
	}

	ns, err := mgr.GetStore(cmd.Context(), info.ID)
	if err != nil {
		return err
	}
	removed, err := ns.Store.CompactChangeLog(cmd.Context(), time.Now().Add(-compactOlderThan))
	if err != nil {
		return fmt.Errorf("compact %s: %w", info.ID, err)
	}

	if appsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"id": info.ID, "removed": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d change-log entries from %s.\n", removed, info.ID)
	return nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
