package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/ai-interviewer/internal/client"
	"github.com/spigell/ai-interviewer/internal/interview"
	"github.com/spigell/ai-interviewer/internal/logger"
)

const (
	PromptShowTranscript = "Show transcript"
	PromptNewInterview   = "Start another interview"
	PromptQuit           = "Quit"
)

var errExit = errors.New("exit requested")

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Take an interview in the terminal against a running server",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("url", "u", "http://localhost:8000", "base URL of the interview API")
	chatCmd.Flags().StringP("job-title", "t", "", "job title to interview for (asked interactively when empty)")
	chatCmd.Flags().String("type", "", "interview type (asked interactively when empty)")
	chatCmd.Flags().IntP("steps", "s", 0, "number of questions (server default when zero)")
}

func chat(cmd *cobra.Command) {
	// Questions go to stdout, so logs must not.
	logger, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: "stderr",
		Name:   "chat",
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	apiURL, _ := cmd.Flags().GetString("url")
	steps, _ := cmd.Flags().GetInt("steps")

	api := client.New(context.Background(), logger, apiURL)

	for {
		err := runInterview(cmd, api, steps)
		if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			logger.Info("exiting", zap.String("reason", "interrupted"))
			return
		}
		if err != nil {
			logger.Fatal("interview failed", zap.Error(err))
		}
	}
}

func runInterview(cmd *cobra.Command, api *client.Client, steps int) error {
	jobTitle, _ := cmd.Flags().GetString("job-title")
	if strings.TrimSpace(jobTitle) == "" {
		var err error
		jobTitle, err = (&promptui.Prompt{
			Label:    "Job title",
			Validate: requireText("job title"),
		}).Run()
		if err != nil {
			return err
		}
	}

	interviewType, _ := cmd.Flags().GetString("type")
	if interviewType == "" {
		var err error
		_, interviewType, err = (&promptui.Select{
			Label: "Interview type",
			Items: interview.InterviewTypes,
		}).Run()
		if err != nil {
			return err
		}
	}

	reply, err := api.Start(strings.TrimSpace(jobTitle), interviewType, steps)
	if err != nil {
		return fmt.Errorf("start interview: %w", err)
	}

	for !reply.Completed() {
		fmt.Printf("\n[%d/%d] %s\n", reply.CurrentStep, reply.MaxSteps, reply.Message)

		answer, err := (&promptui.Prompt{
			Label:    "Your answer",
			Validate: requireText("answer"),
		}).Run()
		if err != nil {
			return err
		}

		reply, err = api.Continue(reply.ID(), strings.TrimSpace(answer))
		if err != nil {
			return fmt.Errorf("continue interview: %w", err)
		}
	}

	fmt.Printf("\nInterview completed.\n\n%s\n\n", reply.Message)

	return afterInterview(api, reply.ID())
}

func afterInterview(api *client.Client, sessionID string) error {
	for {
		_, action, err := (&promptui.Select{
			Label: "What next?",
			Items: []string{PromptShowTranscript, PromptNewInterview, PromptQuit},
		}).Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptShowTranscript:
			session, err := api.Session(sessionID)
			if err != nil {
				// The debug route can be disabled on the server.
				fmt.Printf("transcript is not available: %v\n", err)
				continue
			}
			fmt.Printf("\n%s\n", session.Transcript())
		case PromptNewInterview:
			return nil
		case PromptQuit:
			return errExit
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func requireText(name string) promptui.ValidateFunc {
	return func(input string) error {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
