package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spigell/excel-interviewer/internal/artifact"
	"github.com/spigell/excel-interviewer/internal/fusion"
	"github.com/spigell/excel-interviewer/internal/interview"
	"github.com/spigell/excel-interviewer/internal/judge"
	"github.com/spigell/excel-interviewer/internal/judge/gemini"
	"github.com/spigell/excel-interviewer/internal/logger"
	"github.com/spigell/excel-interviewer/internal/question"
	"github.com/spigell/excel-interviewer/internal/report"
	"github.com/spigell/excel-interviewer/internal/secrets"
	"github.com/spigell/excel-interviewer/internal/session"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Conduct an interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("candidate", "c", "", "candidate identifier (prompted when empty)")
	runCmd.Flags().StringP("format", "f", "html", "report format: html, pdf or json")
	runCmd.Flags().StringP("output", "o", "", "report output file (default report-<session>.<format>)")
}

// run conducts one interview end to end and renders the report.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the excel-interviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	bank, err := question.LoadBank(config.QuestionsFile)
	if err != nil {
		logger.Fatal("loading question bank",
			zap.Error(err),
			zap.String("file", config.QuestionsFile),
		)
	}

	logger.Info("question bank loaded",
		zap.String("file", config.QuestionsFile),
		zap.Int("questions", bank.Len()),
	)

	sessions, err := newStore(config)
	if err != nil {
		logger.Fatal("opening session store", zap.Error(err))
	}
	defer sessions.Close()

	provider, err := newJudge(ctx, config.Judge, logger)
	if err != nil {
		logger.Fatal("building judgment provider",
			zap.Error(err),
			zap.String("hint", "set judge.mode to mock for offline interviews"),
		)
	}

	// Zero is a valid weight (pure judgment scoring), so only fall back to
	// the default when the key is absent from the configuration.
	weight := config.Judge.WeightDeterministic
	if !viper.IsSet("judge.weight-deterministic") {
		weight = fusion.DefaultWeightDeterministic
	}

	svc := interview.New(interview.Config{
		Fusion: fusion.Config{
			WeightDeterministic: weight,
			ConfidenceTolerance: config.Judge.ConfidenceTolerance,
		},
		JudgeTimeout: time.Duration(config.Judge.TimeoutMs) * time.Millisecond,
	}, interview.Deps{
		Bank: bank,
		Machine: session.NewMachine(bank, session.Config{
			MaxTurns:          config.Interview.MaxTurns,
			FollowUpThreshold: config.Interview.FollowUpThreshold,
			InactivityTimeout: config.Interview.inactivityTimeout(),
		}),
		Store:  sessions,
		Loader: artifact.NewLoader(artifact.Config{MaxBytes: config.Artifact.MaxBytes, MaxCells: config.Artifact.MaxCells}, logger),
		Blobs:  artifact.NewFSStore(artifactDir(config)),
		Judge:  provider,
		Logger: logger,
	})

	candidate, err := resolveCandidate(cmd)
	if err != nil {
		logger.Fatal("resolving candidate", zap.Error(err))
	}

	sess, err := svc.Start(ctx, candidate)
	if err != nil {
		logger.Fatal("starting session", zap.Error(err))
	}

	if err := interviewLoop(ctx, svc, bank, sess, logger); err != nil {
		logger.Fatal("interview failed", zap.Error(err))
	}

	final, err := svc.Session(ctx, sess.ID)
	if err != nil {
		logger.Fatal("loading finished session", zap.Error(err))
	}

	if err := writeReport(cmd, final, bank); err != nil {
		logger.Fatal("writing report", zap.Error(err))
	}
}

func interviewLoop(ctx context.Context, svc *interview.Service, bank *question.Bank, sess *session.Session, logger *zap.Logger) error {
	current := sess

	for !current.Closed() {
		q := bank.ByID(current.CurrentQuestion)
		if q == nil {
			return fmt.Errorf("session references unknown question %q", current.CurrentQuestion)
		}

		fmt.Printf("\n[%s] %s\n", q.Type, q.Prompt)
		if q.TimeLimit > 0 {
			fmt.Printf("(suggested time: %ds)\n", q.TimeLimit)
		}

		sub, err := collectSubmission(current.ID, q)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				logger.Info("interview interrupted, abandoning session", zap.String("session_id", current.ID))
				abandoned, aerr := svc.Abandon(ctx, current.ID)
				if aerr != nil {
					return aerr
				}
				current = abandoned
				break
			}
			return err
		}

		updated, turn, err := svc.Submit(ctx, sub)
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				fmt.Println("Workbook file not found, try again.")
				continue
			}
			return err
		}

		fmt.Printf("Scored %.0f%% (confidence %s)\n", turn.Fused.Value*100, turn.Fused.Confidence)
		current = updated
	}

	logger.Info("interview finished",
		zap.String("session_id", current.ID),
		zap.String("status", string(current.Status)),
		zap.Int("turns", len(current.Turns)),
	)

	return nil
}

func collectSubmission(sessionID string, q *question.Question) (interview.Submission, error) {
	sub := interview.Submission{SessionID: sessionID}

	answerPrompt := promptui.Prompt{Label: "Answer"}
	if q.Type == question.TypePractical {
		answerPrompt.Label = "Answer (optional notes)"
	}

	answer, err := answerPrompt.Run()
	if err != nil {
		return sub, err
	}
	sub.Answer = strings.TrimSpace(answer)

	if q.Type == question.TypePractical {
		filePrompt := promptui.Prompt{Label: "Workbook file (blank to skip)"}
		ref, err := filePrompt.Run()
		if err != nil {
			return sub, err
		}
		sub.ArtifactRef = strings.TrimSpace(ref)
		sub.Format = "xlsx"
	}

	return sub, nil
}

func resolveCandidate(cmd *cobra.Command) (string, error) {
	candidate := strings.TrimSpace(cmd.Flag("candidate").Value.String())
	if candidate != "" {
		return candidate, nil
	}

	namePrompt := promptui.Prompt{
		Label: "Candidate name",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("candidate name is required")
			}
			return nil
		},
	}

	name, err := namePrompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func writeReport(cmd *cobra.Command, sess *session.Session, bank *question.Bank) error {
	rep, err := report.Assemble(sess, bank)
	if err != nil {
		return err
	}

	format := cmd.Flag("format").Value.String()
	renderer, err := report.NewRenderer(format)
	if err != nil {
		return err
	}

	out, err := renderer.Render(rep)
	if err != nil {
		return err
	}

	filename := cmd.Flag("output").Value.String()
	if filename == "" {
		filename = fmt.Sprintf("report-%s.%s", sess.ID, format)
	}

	if err := os.WriteFile(filename, out, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	fmt.Printf("\nReport written to %s (overall %.0f%%)\n", filename, rep.OverallScore*100)
	return nil
}

func newJudge(ctx context.Context, cfg *JudgeConfig, zlog *zap.Logger) (judge.Judge, error) {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	switch mode {
	case "", judge.ModeMock:
		return judge.NewMock(), nil
	case judge.ModeLive:
	default:
		return nil, fmt.Errorf("unsupported judge mode: %s", cfg.Mode)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set judge.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithJudgeFields(zlog, "gemini", cfg.Gemini.Model)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewJudge(generator, cfg.Gemini.MaxLogLength, genLogger), nil
}

func artifactDir(config *Config) string {
	if config.Artifact.Dir != "" {
		return config.Artifact.Dir
	}
	return "."
}
