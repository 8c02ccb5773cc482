package commands

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"omakase-monitor/lib/configutil"
	"omakase-monitor/lib/scrapers/omakase"
	"omakase-monitor/lib/serviceutil"
	"omakase-monitor/services/notifier"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type MonitorConfig struct {
	// bounds, in minutes, of the randomized wait between cycles
	IntervalMin int `json:"interval_min"`
	IntervalMax int `json:"interval_max"`
	// extra jitter, in seconds, added on top of each interval
	RandomDelayMax int  `json:"random_delay_max"`
	RunImmediately bool `json:"run_immediately"`
}

type CredentialsConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RestaurantConfig struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Url     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type SmtpConfig struct {
	Server    string `json:"smtp_server"`
	Port      int    `json:"smtp_port"`
	Sender    string `json:"sender_email"`
	Password  string `json:"app_password"`
	Recipient string `json:"receiver_email"`
}

type Config struct {
	Monitor     MonitorConfig      `json:"monitor"`
	Omakase     CredentialsConfig  `json:"omakase"`
	Restaurants []RestaurantConfig `json:"restaurants"`
	Smtp        SmtpConfig         `json:"notification"`
	// defaults to cookies.json next to the config
	CookiesFile string `json:"cookies_file"`
}

// Validate collects every problem at once so the operator fixes the
// config in one pass instead of whack-a-mole. Any error is fatal at
// startup, never surfaced mid-run.
func (c Config) Validate() error {
	var problems []string

	if c.Monitor.IntervalMin < 1 {
		problems = append(problems, "monitor.interval_min must be at least 1 minute")
	}
	if c.Monitor.IntervalMax < c.Monitor.IntervalMin {
		problems = append(problems, "monitor.interval_max must be >= interval_min")
	}
	if c.Monitor.RandomDelayMax < 0 {
		problems = append(problems, "monitor.random_delay_max must be non-negative")
	}

	if c.Omakase.Email == "" {
		problems = append(problems, "omakase.email is required")
	} else if !emailRegex.MatchString(c.Omakase.Email) {
		problems = append(problems, "omakase.email is not a valid email address")
	}
	if c.Omakase.Password == "" {
		problems = append(problems, "omakase.password is required")
	}

	if len(c.Restaurants) == 0 {
		problems = append(problems, "at least one restaurant must be configured")
	}
	enabled := 0
	for i, r := range c.Restaurants {
		if r.Enabled {
			enabled++
		}
		if r.Name == "" {
			problems = append(problems, fmt.Sprintf("restaurants[%d].name is required", i))
		}
		if r.Slug == "" {
			problems = append(problems, fmt.Sprintf("restaurants[%d].slug is required", i))
		}
		if r.Url == "" {
			problems = append(problems, fmt.Sprintf("restaurants[%d].url is required", i))
		}
	}
	if len(c.Restaurants) > 0 && enabled == 0 {
		problems = append(problems, "at least one restaurant must be enabled")
	}

	if c.Smtp.Server == "" {
		problems = append(problems, "notification.smtp_server is required")
	}
	if c.Smtp.Port == 0 {
		problems = append(problems, "notification.smtp_port is required")
	}
	if c.Smtp.Sender == "" {
		problems = append(problems, "notification.sender_email is required")
	} else if !emailRegex.MatchString(c.Smtp.Sender) {
		problems = append(problems, "notification.sender_email is not a valid email address")
	}
	if c.Smtp.Recipient == "" {
		problems = append(problems, "notification.receiver_email is required")
	} else if !emailRegex.MatchString(c.Smtp.Recipient) {
		problems = append(problems, "notification.receiver_email is not a valid email address")
	}
	if c.Smtp.Password == "" {
		problems = append(problems, "notification.app_password is required, set it in config.local.json5")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("configuration validation failed:\n  - " + strings.Join(problems, "\n  - "))
}

func (c Config) Targets() []omakase.Restaurant {
	out := make([]omakase.Restaurant, 0, len(c.Restaurants))
	for _, r := range c.Restaurants {
		out = append(out, omakase.Restaurant{
			Name:    r.Name,
			Slug:    r.Slug,
			URL:     r.Url,
			Enabled: r.Enabled,
		})
	}
	return out
}

func (c Config) SmtpSettings() notifier.SmtpConfig {
	return notifier.SmtpConfig{
		Server:    c.Smtp.Server,
		Port:      c.Smtp.Port,
		Sender:    c.Smtp.Sender,
		Password:  c.Smtp.Password,
		Recipient: c.Smtp.Recipient,
	}
}

func mustLoadConfig() Config {
	config, err := configutil.ReadConfig[Config](configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.CookiesFile == "" {
		config.CookiesFile = "cookies.json"
	}
	err = config.Validate()
	if err != nil {
		serviceutil.Fatal("invalid config", err)
	}
	return config
}
