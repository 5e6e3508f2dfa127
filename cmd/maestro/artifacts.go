package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/maestrohq/maestro/internal/compression"
	"github.com/maestrohq/maestro/internal/config"
)

var artifactsRoot string

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect stored worker outputs",
	Long: `Inspect the raw worker outputs archived during plan runs.

Every bulky worker output is saved under the artifact directory with a
deterministic name, alongside a .meta.json file holding its compressed
summary. These commands list, read, and watch that directory.`,
}

var artifactsListCmd = &cobra.Command{
	Use:   "list [plan-title]",
	Short: "List stored artifacts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArtifactsList,
}

var artifactsReadCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a stored artifact",
	Long: `Print a stored artifact by its path relative to the artifact
directory. JSON artifacts are pretty-printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runArtifactsRead,
}

var artifactsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for new artifacts as a plan runs",
	Long: `Watch the artifact directory and report each artifact as it is
written. Useful in a second terminal while a plan is running.`,
	RunE: runArtifactsWatch,
}

func init() {
	artifactsCmd.PersistentFlags().StringVar(&artifactsRoot, "dir", "", "Artifact directory (default from config)")
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsReadCmd)
	artifactsCmd.AddCommand(artifactsWatchCmd)
}

// artifactStore opens the store at the configured root.
func artifactStore() (*compression.Store, error) {
	root := artifactsRoot
	if root == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		root = cfg.Compression.ArtifactRoot
	}
	return compression.NewStore(root), nil
}

func runArtifactsList(cmd *cobra.Command, args []string) error {
	store, err := artifactStore()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		entries, err := os.ReadDir(store.Root())
		if os.IsNotExist(err) {
			fmt.Println("No artifacts yet.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read artifact directory: %w", err)
		}

		plans := 0
		for _, entry := range entries {
			if entry.IsDir() {
				fmt.Println(entry.Name())
				plans++
			}
		}
		if plans == 0 {
			fmt.Println("No artifacts yet.")
		}
		return nil
	}

	artifacts, err := store.ListArtifacts(args[0])
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		fmt.Println("No artifacts for this plan.")
		return nil
	}
	for _, a := range artifacts {
		fmt.Printf("%8d  %s\n", a.Size, a.Path)
	}
	return nil
}

func runArtifactsRead(cmd *cobra.Command, args []string) error {
	store, err := artifactStore()
	if err != nil {
		return err
	}

	content, err := store.ReadArtifact(args[0])
	if err != nil {
		return err
	}
	fmt.Println(content)
	return nil
}

func runArtifactsWatch(cmd *cobra.Command, args []string) error {
	store, err := artifactStore()
	if err != nil {
		return err
	}
	root := store.Root()
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	// Per-plan subdirectories already present are watched too; new ones
	// get added as their create events arrive.
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read artifact directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				return fmt.Errorf("watch %s: %w", entry.Name(), err)
			}
		}
	}

	fmt.Printf("Watching %s (ctrl-c to stop)\n", root)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Has(fsnotify.Create) {
					if err := watcher.Add(event.Name); err != nil {
						fmt.Fprintf(os.Stderr, "warning: watch %s: %v\n", event.Name, err)
					}
				}
				continue
			}
			if strings.HasSuffix(event.Name, ".meta.json") {
				continue
			}
			if event.Has(fsnotify.Create) {
				rel, err := filepath.Rel(root, event.Name)
				if err != nil {
					rel = event.Name
				}
				fmt.Printf("%s %s\n", color.GreenString("+"), rel)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "warning: watch error: %v\n", err)
		}
	}
}
