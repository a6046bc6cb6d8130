package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spigell/excel-interviewer/internal/logger"
	"github.com/spigell/excel-interviewer/internal/question"
	"github.com/spigell/excel-interviewer/internal/report"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Re-render the report for a stored session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		renderStoredReport(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("format", "f", "html", "report format: html, pdf or json")
	reportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

func renderStoredReport(cmd *cobra.Command, sessionID string) {
	ctx := context.Background()

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	bank, err := question.LoadBank(config.QuestionsFile)
	if err != nil {
		zlog.Fatal("loading question bank", zap.Error(err))
	}

	sessions, err := newStore(config)
	if err != nil {
		zlog.Fatal("opening session store", zap.Error(err))
	}
	defer sessions.Close()

	sess, err := sessions.Load(ctx, sessionID)
	if err != nil {
		zlog.Fatal("loading session",
			zap.Error(err),
			zap.String(logger.FieldSession, sessionID),
		)
	}

	rep, err := report.Assemble(sess, bank)
	if err != nil {
		zlog.Fatal("assembling report", zap.Error(err))
	}

	format := cmd.Flag("format").Value.String()
	renderer, err := report.NewRenderer(format)
	if err != nil {
		zlog.Fatal("selecting renderer", zap.Error(err))
	}

	out, err := renderer.Render(rep)
	if err != nil {
		zlog.Fatal("rendering report", zap.Error(err))
	}

	filename := cmd.Flag("output").Value.String()
	if filename == "" {
		fmt.Print(string(out))
		return
	}

	if err := os.WriteFile(filename, out, 0o644); err != nil {
		zlog.Fatal("writing report file", zap.Error(err))
	}

	zlog.Info("report written",
		zap.String("filename", filename),
		zap.String("format", format),
		zap.String(logger.FieldSession, sessionID),
	)
}
