package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	config "flowpilot/app/configs"
	"flowpilot/app/core/agents"
	httpserver "flowpilot/app/core/interaction/http"
	"flowpilot/app/core/integrations/calendar"
	"flowpilot/app/core/integrations/github"
	"flowpilot/app/core/integrations/jira"
	"flowpilot/app/core/integrations/slack"
	"flowpilot/app/core/llm"
	"flowpilot/app/core/notify"
	"flowpilot/app/core/orchestrator/db"
	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/core/planning"
	"flowpilot/app/core/sessions"
	"flowpilot/app/pkg/logger"
)

func main() {
	// A missing .env is fine; the environment may be set elsewhere.
	_ = godotenv.Load()

	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("FlowPilot starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	database, err := db.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	baseStore := store.New(database)
	taskStore := store.NewTaskStore(baseStore)
	sessionStore := store.NewSessionStore(baseStore)
	notificationStore := store.NewNotificationStore(baseStore)
	planStore := store.NewPlanStore(baseStore)
	settingsStore := store.NewSettingsStore(baseStore)

	llmClient := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, time.Duration(cfg.LLM.TimeoutSec)*time.Second)
	planningAgent := agents.NewPlanningAgent(llmClient)
	interruptAgent := agents.NewInterruptAgent(llmClient)
	sessionAgent := agents.NewSessionAgent(llmClient)

	githubClient := github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.Token)
	jiraClient := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.Token)
	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.UserID, cfg.Slack.ChannelIDs)
	calendarClient := calendar.NewClient(cfg.Calendar.CalendarID, cfg.Calendar.APIKey, cfg.Planner.WorkStart, cfg.Planner.WorkEnd)

	userID := cfg.Planner.UserID

	sessionManager := sessions.NewManager(
		userID, sessionStore, taskStore, notificationStore,
		githubClient, jiraClient, slackClient, sessionAgent,
	)
	planningService := planning.NewService(
		userID, planStore, taskStore, settingsStore,
		githubClient, jiraClient, calendarClient, planningAgent,
		planning.WorkingHours{
			Timezone:  cfg.Planner.Timezone,
			WorkStart: cfg.Planner.WorkStart,
			WorkEnd:   cfg.Planner.WorkEnd,
		},
	)
	notifyService := notify.NewService(
		userID, notificationStore, taskStore, planStore,
		slackClient, interruptAgent,
	)

	server := httpserver.NewServer(
		cfg.Server.Port, userID,
		taskStore, settingsStore,
		githubClient, jiraClient,
		planningService, sessionManager, notifyService,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("FlowPilot is ready to serve.")
	fmt.Printf("- API: http://localhost:%d (plan-day, sessions, notifications)\n", cfg.Server.Port)
	fmt.Printf("- Health: http://localhost:%d/health\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. FlowPilot shutting down...", sig)
	cancel()
}
