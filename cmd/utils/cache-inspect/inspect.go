package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/storage"
	"ant-bootstrap/internal/types"
)

type options struct {
	File    string `short:"f" long:"file" default:"bootstrap_cache.yaml" description:"bootstrap cache file to inspect"`
	Migrate bool   `long:"migrate" description:"rewrite the file at the current format version"`
	Verbose bool   `short:"v" long:"verbose" description:"log at debug level"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level := "error"
	if opts.Verbose {
		level = "debug"
	}
	_ = logger.Init(logger.Config{ConsoleOutput: true, Level: level})

	if err := inspect(opts.File); err != nil {
		logger.Error("Failed to inspect bootstrap cache", "path", opts.File, "error", err)
		os.Exit(1)
	}

	if opts.Migrate {
		if err := migrate(opts.File); err != nil {
			logger.Error("Failed to migrate bootstrap cache", "path", opts.File, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Rewritten at version %d\n", storage.CurrentVersion)
	}
}

func inspect(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := storage.Decode(data, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("File:     %s\n", path)
	fmt.Printf("Version:  %d", result.SourceVersion)
	if result.Migrated() {
		fmt.Printf(" (current %d)", storage.CurrentVersion)
	}
	fmt.Println()
	fmt.Printf("Entries:  %d\n", len(result.File.Entries))
	fmt.Printf("Dropped:  %d\n", result.Dropped)
	fmt.Println()

	entries := result.File.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	for _, entry := range entries {
		fmt.Printf("%s  %s%s\n", entry.LastSeen.UTC().Format(time.RFC3339), entry.Address, formatMetadata(entry))
	}
	return nil
}

func formatMetadata(entry types.CacheEntry) string {
	if len(entry.Metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Metadata))
	for k := range entry.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + entry.Metadata[k]
	}
	return "  [" + strings.Join(parts, " ") + "]"
}

func migrate(path string) error {
	store, err := storage.Open(types.CacheConfig{CachePath: path})
	if err != nil {
		return err
	}
	return store.Close()
}
