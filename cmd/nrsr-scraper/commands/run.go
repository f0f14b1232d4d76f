package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
	"github.com/spf13/cobra"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/lib/telemetry"
	"nrsr-backend/lib/timezone"
	"nrsr-backend/lib/vpapi"
	"nrsr-backend/lib/webcache"
	"nrsr-backend/services/sync"
)

var (
	term    *string
	people  *string
	motions *string
	debates *bool
)

func init() {
	term = runCmd.Flags().String("term", "", "Term of office to scrape, empty means the current one.")
	people = runCmd.Flags().String("people", "none", "People scrape mode: none, initial (all terms) or recent.")
	motions = runCmd.Flags().String("motions", "none", "Motion scrape mode: none, initial (all terms) or incremental.")
	debates = runCmd.Flags().Bool("debates", false, "Scrape new debate transcripts.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--term <n>] [--people <mode>] [--motions <mode>] [--debates]",
	Short: "Runs a scrape and reconciles the results into the entity store.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		logfile, logName, err := openRunLog(config.LogDir)
		if err != nil {
			fatal("failed to open log file", err)
		}
		defer logfile.Close()
		telemetry.InitSlog(logfile, *debug)

		tel, err := telemetry.SetupFromEnv(ctx, "nrsr-scraper")
		if os.IsNotExist(err) {
			// no telemetry.json5 around, the scrape runs without exporters
			slog.Warn("telemetry config not found, exporters disabled")
		} else if err != nil {
			fatal("failed to set up telemetry", err)
		} else {
			defer tel.Shutdown(context.Background())
		}
		telemetry.InstrumentPerfStats(ctx)

		corrections, err := readNameCorrections(config.NameCorrectionsFile)
		if err != nil {
			fatal("failed to read name corrections", err)
		}

		cache, err := webcache.OpenFile(config.Cache)
		if err != nil {
			fatal("failed to open page cache", err)
		}
		source := nrsr.NewClient(cache)
		err = source.ClearCache(ctx)
		if err != nil {
			fatal("failed to clear page cache", err)
		}
		err = source.SelfCheck(ctx)
		if err != nil {
			fatal("parser self-check failed", err)
		}

		store := vpapi.NewClient(vpapi.ClientOptions{
			BaseURL:  config.Store.BaseUrl,
			Username: config.Store.Username,
			Password: config.Store.Password,
		})
		service := sync.NewService(source, store, sync.Options{
			NameCorrections: corrections,
		})

		logID, err := store.Create(ctx, "logs", map[string]any{
			"status": "running",
			"file":   logName,
			"params": runParams(),
		})
		if err != nil {
			fatal("failed to record run start", err)
		}

		results := runFamilies(ctx, service)

		status := "finished"
		for _, result := range results {
			if result.err != nil {
				status = "failed"
			}
		}
		err = store.Patch(ctx, "logs", logID, map[string]any{"status": status})
		if err != nil {
			slog.Error("failed to record run status", "err", err)
		}

		printSummary(results)
		if status == "failed" {
			notifyFailure(config.Email, logName, results)
			os.Exit(1)
		}
	},
}

type familyResult struct {
	family   string
	duration time.Duration
	err      error
}

// runFamilies runs the requested entity families. Families are
// isolated: one failing does not roll back or skip the others.
func runFamilies(ctx context.Context, service *sync.Service) []familyResult {
	var results []familyResult
	run := func(family string, fn func() error) {
		start := time.Now()
		err := fn()
		if err != nil {
			slog.Error("family failed", "family", family, "err", err)
		}
		results = append(results, familyResult{
			family:   family,
			duration: time.Since(start),
			err:      err,
		})
	}

	terms := []string{*term}
	if *people == "initial" || *motions == "initial" {
		terms = nrsr.SortedTermNumbers()
	}

	if *people != "none" {
		run("people", func() error {
			if *people != "initial" {
				return service.SyncPeople(ctx, *term)
			}
			for _, t := range terms {
				if err := service.SyncPeople(ctx, t); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if *motions != "none" {
		run("motions", func() error {
			if *motions != "initial" {
				return service.SyncMotions(ctx, *term)
			}
			for _, t := range terms {
				if err := service.SyncMotions(ctx, t); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if *debates {
		run("debates", func() error {
			return service.SyncDebates(ctx, *term)
		})
	}
	return results
}

func openRunLog(dir string) (*os.File, string, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, "", err
	}
	name := "scrape-" + timezone.Now().Format("20060102-150405") + ".log"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, "", err
	}
	return f, name, nil
}

func runParams() string {
	parts := []string{"people=" + *people, "motions=" + *motions}
	if *debates {
		parts = append(parts, "debates")
	}
	if *term != "" {
		parts = append(parts, "term="+*term)
	}
	return strings.Join(parts, " ")
}

func printSummary(results []familyResult) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"Family", "Status", "Duration"})
	for _, result := range results {
		status := "ok"
		if result.err != nil {
			status = result.err.Error()
		}
		w.AppendRow(table.Row{result.family, status, result.duration.Round(time.Second)})
	}
	w.Render()
}

func notifyFailure(config EmailConfig, logName string, results []familyResult) {
	if config.Host == "" || len(config.To) == 0 {
		return
	}

	var lines []string
	for _, result := range results {
		if result.err != nil {
			lines = append(lines, fmt.Sprintf("%s: %v", result.family, result.err))
		}
	}

	e := email.NewEmail()
	e.From = config.From
	e.To = config.To
	e.Subject = "nrsr-scraper run failed"
	e.Text = []byte(strings.Join(lines, "\n") + "\n\nlog file: " + logName + "\n")

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	err := e.Send(addr, auth)
	if err != nil {
		slog.Error("failed to send failure notification", "err", err)
	}
}
