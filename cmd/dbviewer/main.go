package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amaumene/vodarr/internal/config"
	"github.com/amaumene/vodarr/internal/domain"
	"github.com/amaumene/vodarr/internal/storage"
	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
)

// LibraryStats summarises the download registry and the job history.
type LibraryStats struct {
	Records   int
	Movies    int
	Episodes  int
	TotalMB   float64
	Completed int
	Failed    int
	Aborted   int
}

func main() {
	var (
		dataDir     = flag.String("data", "", "Path to the vodarr data directory (required)")
		showStats   = flag.Bool("stats", false, "Show only statistics")
		showHistory = flag.Bool("history", false, "Show the job history instead of the registry")
		kind        = flag.String("kind", "", "Show only records of this kind: movie, episode")
		limit       = flag.Int("limit", 50, "Number of history entries to show")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		sortBy      = flag.String("sort", "date", "Sort registry by: date, name, size")
	)
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -data <data-dir> [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -data /data -stats\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -data /data -kind movie -sort size\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -data /data -history -limit 20\n", os.Args[0])
		os.Exit(1)
	}

	if _, err := os.Stat(*dataDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: data directory '%s' does not exist\n", *dataDir)
		os.Exit(1)
	}

	records := storage.NewRegistry(filepath.Join(*dataDir, config.RegistryFileName)).List()
	records = filterRecords(records, domain.Kind(*kind))
	sortRecords(records, *sortBy)

	var entries []domain.HistoryEntry
	historyPath := filepath.Join(*dataDir, config.HistoryFileName)
	if _, err := os.Stat(historyPath); err == nil {
		store, err := bolthold.Open(historyPath, 0600, &bolthold.Options{
			Options: &bolt.Options{ReadOnly: true, Timeout: 2 * time.Second},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history (is vodarr running?): %v\n", err)
			os.Exit(1)
		}
		history := storage.NewHistoryRepository(store)
		defer history.Close()

		entries, err = history.Recent(context.Background(), *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			os.Exit(1)
		}
	}

	colorize := getColorizer(*noColor)
	stats := calculateStats(records, entries)

	printHeader(colorize, *dataDir, len(records), len(entries))

	if *showStats {
		printStatistics(colorize, stats)
		return
	}

	if *showHistory {
		printHistory(colorize, entries)
	} else {
		printRegistry(colorize, records)
	}

	fmt.Print("\n" + colorize("cyan", "=== SUMMARY ===") + "\n")
	printStatistics(colorize, stats)
}

func filterRecords(records []domain.DownloadRecord, kind domain.Kind) []domain.DownloadRecord {
	if kind == "" {
		return records
	}

	var filtered []domain.DownloadRecord
	for _, rec := range records {
		if rec.ContentID.Kind == kind {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

func sortRecords(records []domain.DownloadRecord, sortBy string) {
	sort.Slice(records, func(i, j int) bool {
		switch sortBy {
		case "name":
			return strings.ToLower(records[i].Filename) < strings.ToLower(records[j].Filename)
		case "size":
			return records[i].SizeMB > records[j].SizeMB
		default: // date
			return records[i].DownloadedAt.After(records[j].DownloadedAt)
		}
	})
}

func calculateStats(records []domain.DownloadRecord, entries []domain.HistoryEntry) LibraryStats {
	stats := LibraryStats{}

	for _, rec := range records {
		stats.Records++
		stats.TotalMB += rec.SizeMB
		switch rec.ContentID.Kind {
		case domain.KindMovie:
			stats.Movies++
		case domain.KindEpisode:
			stats.Episodes++
		}
	}

	for _, entry := range entries {
		switch entry.Outcome {
		case domain.OutcomeCompleted:
			stats.Completed++
		case domain.OutcomeFailed:
			stats.Failed++
		case domain.OutcomeAborted:
			stats.Aborted++
		}
	}

	return stats
}

func getColorizer(noColor bool) func(string, string) string {
	if noColor {
		return func(color, text string) string { return text }
	}

	colors := map[string]string{
		"red":    ColorRed,
		"green":  ColorGreen,
		"yellow": ColorYellow,
		"blue":   ColorBlue,
		"purple": ColorPurple,
		"cyan":   ColorCyan,
		"white":  ColorWhite,
		"bold":   ColorBold,
	}

	return func(color, text string) string {
		if c, ok := colors[color]; ok {
			return c + text + ColorReset
		}
		return text
	}
}

func printHeader(colorize func(string, string) string, dataDir string, records, entries int) {
	rule := strings.Repeat("=", 72)
	fmt.Println(colorize("bold", rule))
	fmt.Println(colorize("cyan", "                          VODARR LIBRARY VIEWER"))
	fmt.Println(colorize("bold", rule))
	fmt.Printf("%s%s\n", colorize("yellow", "Data dir: "), dataDir)
	fmt.Printf("%s%d downloaded, %d history entries\n", colorize("yellow", "Showing: "), records, entries)
	fmt.Printf("%s%s\n\n", colorize("yellow", "Scanned: "), time.Now().Format("2006-01-02 15:04:05"))
}

func printStatistics(colorize func(string, string) string, stats LibraryStats) {
	fmt.Println(colorize("bold", "LIBRARY STATISTICS"))
	fmt.Printf("  Downloaded:      %s\n", colorize("white", fmt.Sprintf("%d", stats.Records)))
	fmt.Printf("  Movies:          %s\n", colorize("blue", fmt.Sprintf("%d", stats.Movies)))
	fmt.Printf("  Episodes:        %s\n", colorize("purple", fmt.Sprintf("%d", stats.Episodes)))
	fmt.Printf("  Total size:      %s\n", colorize("white", formatBytes(int64(stats.TotalMB*1024*1024))))
	fmt.Printf("  Completed jobs:  %s\n", colorize("green", fmt.Sprintf("%d", stats.Completed)))
	fmt.Printf("  Failed jobs:     %s\n", colorize("red", fmt.Sprintf("%d", stats.Failed)))
	fmt.Printf("  Aborted jobs:    %s\n", colorize("yellow", fmt.Sprintf("%d", stats.Aborted)))

	if total := stats.Completed + stats.Failed + stats.Aborted; total > 0 {
		rate := float64(stats.Completed) / float64(total) * 100
		fmt.Printf("  Success rate:    %s\n", colorize("green", fmt.Sprintf("%.1f%%", rate)))
	}
	fmt.Println()
}

func printRegistry(colorize func(string, string) string, records []domain.DownloadRecord) {
	fmt.Println(colorize("bold", "DOWNLOADED CONTENT"))

	for i, rec := range records {
		typeColor := "blue"
		if rec.ContentID.Kind == domain.KindEpisode {
			typeColor = "purple"
		}

		name := rec.Filename
		if name == "" {
			name = "(no file name)"
		}

		fmt.Printf("%s %s %s\n",
			colorize("white", fmt.Sprintf("[%03d]", i+1)),
			colorize(typeColor, rec.ContentID.String()),
			colorize("bold", name))

		details := []string{
			colorize("yellow", formatBytes(int64(rec.SizeMB*1024*1024))),
		}
		if !rec.DownloadedAt.IsZero() {
			details = append(details, colorize("white", "Downloaded: "+rec.DownloadedAt.Local().Format("2006-01-02 15:04")))
		}
		fmt.Printf("    %s\n", strings.Join(details, " | "))
	}
}

func printHistory(colorize func(string, string) string, entries []domain.HistoryEntry) {
	fmt.Println(colorize("bold", "JOB HISTORY"))

	for i, entry := range entries {
		outcomeColor := "green"
		switch entry.Outcome {
		case domain.OutcomeFailed:
			outcomeColor = "red"
		case domain.OutcomeAborted:
			outcomeColor = "yellow"
		}

		title := entry.Title
		if title == "" {
			title = entry.ContentID
		}

		fmt.Printf("%s %s %s %s\n",
			colorize("white", fmt.Sprintf("[%03d]", i+1)),
			colorize(outcomeColor, fmt.Sprintf("[%s]", strings.ToUpper(string(entry.Outcome)))),
			colorize("bold", title),
			colorize("cyan", entry.ContentID))

		details := []string{
			fmt.Sprintf("Attempts: %d", entry.Attempts),
			"Finished: " + entry.FinishedAt.Local().Format("2006-01-02 15:04"),
		}
		if entry.Outcome == domain.OutcomeCompleted {
			details = append(details, formatBytes(int64(entry.SizeMB*1024*1024)))
		}
		fmt.Printf("    %s\n", strings.Join(details, " | "))

		if entry.Error != "" {
			fmt.Printf("    %s %s\n", colorize("red", "Error:"), entry.Error)
		}
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
