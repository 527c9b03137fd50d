package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"answergate/adapters/excel"
	"answergate/app"
	"answergate/domain/gate"
	"answergate/domain/remediation"
	"answergate/internal/config"
	"answergate/internal/container"
	"answergate/ports"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "answergate",
		Short: "Answer quality gate CLI for detection, validation and SME workflows",
	}

	rootCmd.AddCommand(
		newDetectCmd(),
		newValidateCmd(),
		newEntriesCmd(),
		newAnswerCmd(),
		newImportCmd(),
		newSweepCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildContainer loads config and wires dependencies, including postgres
// when that backend is selected.
func buildContainer() (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Store.Backend == "postgres" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := c.InitWithDatabase(db); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func newDetectCmd() *cobra.Command {
	var contextPassages []string
	var response string

	cmd := &cobra.Command{
		Use:   "detect [query]",
		Short: "Score a response and apply thresholds without touching the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			v, err := c.Gate.Detect(cmd.Context(), gate.EvalInput{
				Query:    args[0],
				Context:  contextPassages,
				Response: response,
			})
			if err != nil {
				return err
			}

			printVerdict(v.ShouldEscalate, v.ShouldGuardrail, v.FailingMetrics)
			for name, score := range v.Scores {
				fmt.Printf("  %-24s %.3f\n", name, score.Value)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&contextPassages, "context", nil, "Retrieved context passages")
	cmd.Flags().StringVar(&response, "response", "", "Generated response under evaluation")
	cmd.MarkFlagRequired("response")

	return cmd
}

func newValidateCmd() *cobra.Command {
	var contextPassages []string
	var response string

	cmd := &cobra.Command{
		Use:   "validate [query]",
		Short: "Run the full gate: detect, then look up or log a remediation entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Gate.Validate(cmd.Context(), gate.EvalInput{
				Query:    args[0],
				Context:  contextPassages,
				Response: response,
			})
			if err != nil {
				return err
			}

			printVerdict(result.Verdict.ShouldEscalate, result.Verdict.ShouldGuardrail, result.Verdict.FailingMetrics)
			if result.ExpertAnswer != nil {
				color.Cyan("Expert answer: %s", *result.ExpertAnswer)
			}
			fmt.Printf("Final answer: %s\n", result.FinalAnswer(response, ""))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&contextPassages, "context", nil, "Retrieved context passages")
	cmd.Flags().StringVar(&response, "response", "", "Generated response under evaluation")
	cmd.MarkFlagRequired("response")

	return cmd
}

func newEntriesCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List remediation entries awaiting or carrying SME answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			filters := ports.EntryFilters{Limit: 100}
			if state != "" {
				s := remediation.State(state)
				filters.State = &s
			}

			entries, err := c.Store.ListEntries(cmd.Context(), filters)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("No entries")
				return nil
			}

			for _, entry := range entries {
				marker := color.YellowString("UNANSWERED")
				if entry.State == remediation.StateAnswered {
					marker = color.GreenString("ANSWERED  ")
				}
				fmt.Printf("%s  %s  seen=%d  %s\n", marker, entry.ID, entry.SeenCount, entry.Question)
				if entry.Answer != "" {
					fmt.Printf("            -> %s\n", entry.Answer)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (answered|unanswered)")

	return cmd
}

func newAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer [entry-id] [answer...]",
		Short: "Supply an SME answer for an escalated entry",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry ID %q: %w", args[0], err)
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			answer := strings.Join(args[1:], " ")
			if err := c.Store.AnswerEntry(cmd.Context(), id, answer); err != nil {
				return err
			}

			color.Green("Entry %s answered", id)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.xlsx|file.csv]",
		Short: "Bulk-load SME Q&A pairs into the remediation store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			importer, ok := c.Store.(ports.EntryImporter)
			if !ok {
				return fmt.Errorf("store backend %q does not support bulk import", c.Config.Store.Backend)
			}

			entries, err := excel.NewQAReader(args[0]).ReadEntries()
			if err != nil {
				return err
			}

			imported, err := importer.Import(cmd.Context(), entries)
			if err != nil {
				return err
			}

			color.Green("Imported %d/%d entries", imported, len(entries))
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "sweep [cases.json]",
		Short: "Batch-detect a case file and report score distributions for threshold tuning",
		Long: `Batch-detect a case file and report per-metric score distributions.

The case file is a JSON array of objects with query, response and optional
context fields. The report suggests thresholds at the 10th percentile of
observed scores.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := loadCases(args[0])
			if err != nil {
				return err
			}

			c, err := buildContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			sweep, err := app.NewSweepService(c.Gate, concurrency)
			if err != nil {
				return err
			}

			report, err := sweep.Run(cmd.Context(), cases)
			if err != nil {
				return err
			}

			printReport(report.Cases, report.Degraded, report.EscalateRate, report.GuardrailRate)
			for name, summary := range report.PerMetric {
				fmt.Printf("  %-24s n=%d mean=%.3f median=%.3f p10=%.3f suggested=%.3f\n",
					name, summary.Count, summary.Mean, summary.Median, summary.P10, summary.SuggestedThreshold)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Concurrent oracle calls")

	return cmd
}

func loadCases(path string) ([]gate.EvalInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	var cases []gate.EvalInput
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse case file: %w", err)
	}
	return cases, nil
}

func printVerdict(escalate, guardrail bool, failing []string) {
	switch {
	case escalate:
		color.Red("ESCALATE (failing: %s)", strings.Join(failing, ", "))
	case guardrail:
		color.Yellow("GUARDRAIL (failing: %s)", strings.Join(failing, ", "))
	default:
		color.Green("PASS")
	}
}

func printReport(cases, degraded int, escalateRate, guardrailRate float64) {
	fmt.Printf("Cases: %d (degraded: %d)\n", cases, degraded)
	fmt.Printf("Escalate rate: %.1f%%  Guardrail rate: %.1f%%\n", escalateRate*100, guardrailRate*100)
}
