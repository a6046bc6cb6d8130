package cmd

import (
	"fmt"
	"log"

	"github.com/spigell/excel-interviewer/internal/logger"
	"github.com/spigell/excel-interviewer/internal/question"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Validate and list the question bank",
	Run: func(_ *cobra.Command, _ []string) {
		listQuestions()
	},
}

func init() {
	rootCmd.AddCommand(questionsCmd)
}

func listQuestions() {
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
		zlog.Fatal("question bank is invalid",
			zap.Error(err),
			zap.String("file", config.QuestionsFile),
		)
	}

	for _, q := range bank.All() {
		kind := "base"
		if q.FollowUp {
			kind = "follow-up"
		}

		fmt.Printf("%-16s %-15s %-9s %s\n", q.ID, q.Type, kind, q.Prompt)
		if len(q.FollowUps) > 0 {
			fmt.Printf("%-16s follow-ups: %v\n", "", q.FollowUps)
		}
	}

	zlog.Info("question bank is valid",
		zap.String("file", config.QuestionsFile),
		zap.Int("questions", bank.Len()),
	)
}
