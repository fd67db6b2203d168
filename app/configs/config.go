package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	LLM      LLMConfig      `json:"llm"`
	Planner  PlannerConfig  `json:"planner"`
	GitHub   GitHubConfig   `json:"github"`
	Jira     JiraConfig     `json:"jira"`
	Slack    SlackConfig    `json:"slack"`
	Calendar CalendarConfig `json:"calendar"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type LLMConfig struct {
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeout_sec"`
	APIKey     string `json:"-"`
}

type PlannerConfig struct {
	UserID    string `json:"user_id"`
	Timezone  string `json:"timezone"`
	WorkStart string `json:"work_start"`
	WorkEnd   string `json:"work_end"`
}

type GitHubConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"-"`
}

type JiraConfig struct {
	BaseURL string `json:"base_url"`
	Email   string `json:"email"`
	Token   string `json:"-"`
}

type SlackConfig struct {
	BotToken   string   `json:"-"`
	UserID     string   `json:"user_id"`
	ChannelIDs []string `json:"channel_ids"`
}

type CalendarConfig struct {
	CalendarID string `json:"calendar_id"`
	APIKey     string `json:"-"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	mgr.applyEnv()
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

// applyEnv fills secrets and env-provided overrides. Secrets carry a `json:"-"`
// tag so they never land in the config file.
func (m *Manager) applyEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	setIfEnv := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setIfEnv(&m.cfg.LLM.APIKey, "OPENAI_API_KEY")
	setIfEnv(&m.cfg.LLM.Model, "OPENAI_MODEL")
	setIfEnv(&m.cfg.GitHub.Token, "GITHUB_TOKEN")
	setIfEnv(&m.cfg.Jira.BaseURL, "JIRA_BASE_URL")
	setIfEnv(&m.cfg.Jira.Email, "JIRA_EMAIL")
	setIfEnv(&m.cfg.Jira.Token, "JIRA_API_TOKEN")
	setIfEnv(&m.cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	setIfEnv(&m.cfg.Slack.UserID, "SLACK_USER_ID")
	setIfEnv(&m.cfg.Calendar.CalendarID, "GOOGLE_CALENDAR_ID")
	setIfEnv(&m.cfg.Calendar.APIKey, "GOOGLE_API_KEY")

	if v := strings.TrimSpace(os.Getenv("SLACK_CHANNEL_IDS")); v != "" {
		parts := strings.Split(v, ",")
		channels := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				channels = append(channels, trimmed)
			}
		}
		if len(channels) > 0 {
			m.cfg.Slack.ChannelIDs = channels
		}
	}
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			Model:      "gpt-4o-mini",
			TimeoutSec: 30,
		},
		Planner: PlannerConfig{
			UserID:    "demoUser",
			Timezone:  "UTC",
			WorkStart: "09:00",
			WorkEnd:   "18:00",
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 4000
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSec <= 0 {
		cfg.LLM.TimeoutSec = 30
	}
	if strings.TrimSpace(cfg.Planner.UserID) == "" {
		cfg.Planner.UserID = "demoUser"
	}
	if strings.TrimSpace(cfg.Planner.Timezone) == "" {
		cfg.Planner.Timezone = "UTC"
	}
	if strings.TrimSpace(cfg.Planner.WorkStart) == "" {
		cfg.Planner.WorkStart = "09:00"
	}
	if strings.TrimSpace(cfg.Planner.WorkEnd) == "" {
		cfg.Planner.WorkEnd = "18:00"
	}
	if strings.TrimSpace(cfg.GitHub.BaseURL) == "" {
		cfg.GitHub.BaseURL = "https://api.github.com"
	}
}
