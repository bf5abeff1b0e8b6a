package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type client struct {
	baseURL    string
	token      string
	admin      bool
	httpClient *http.Client
}

type statusResp struct {
	ValidationID string `json:"validationId"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
}

type agentResp struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	HealthScore float64 `json:"healthScore"`
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

type profile struct {
	BaseURL string `yaml:"baseUrl"`
	Token   string `yaml:"token"`
	Admin   bool   `yaml:"admin"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (c *client) request(method, path string, body any) (int, []byte, error) {
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Role", "ADMIN")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func main() {
	baseURL := getenv("GOVERNOR_BASE_URL", "http://localhost:8080")
	token := getenv("GOVERNOR_TOKEN", "")
	admin := getenvBool("GOVERNOR_ADMIN", isLocalURL(baseURL))
	profileName := getenv("GOVERNOR_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "governor",
		Short: "governor CLI",
		Long:  "governor CLI for architecture validations and agent fleet operations.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL for governor")
	root.PersistentFlags().StringVar(&token, "token", token, "Bearer token")
	root.PersistentFlags().BoolVar(&admin, "admin", admin, "Send X-Role: ADMIN (dev only)")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("GOVERNOR_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("token") {
			if v := strings.TrimSpace(os.Getenv("GOVERNOR_TOKEN")); v != "" {
				token = v
			} else if prof.Token != "" {
				token = prof.Token
			}
		}
		if !flags.Changed("admin") {
			if v := strings.TrimSpace(os.Getenv("GOVERNOR_ADMIN")); v != "" {
				admin = getenvBool("GOVERNOR_ADMIN", admin)
			} else if prof.Admin {
				admin = true
			} else if isLocalURL(baseURL) {
				admin = true
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(authCmd(&profileName, ui))
	root.AddCommand(validateCmd(&baseURL, &token, &admin, ui))
	root.AddCommand(agentsCmd(&baseURL, &token, &admin, ui))
	root.AddCommand(swarmCmd(&baseURL, &token, &admin, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL  string
		token    string
		admin    bool
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				if token == "" {
					token = prompt(reader, "Token (optional)", "")
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			if cmd.Flags().Changed("admin") {
				prof.Admin = admin
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for governor")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	cmd.Flags().BoolVar(&admin, "admin", false, "Set admin for profile")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	var (
		token string
		admin bool
	)

	set := &cobra.Command{
		Use:   "set",
		Short: "Store token in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				p, err := promptSecret("Token")
				if err != nil {
					return err
				}
				token = p
			}
			if token == "" && !cmd.Flags().Changed("admin") {
				return errors.New("provide --token (or --admin)")
			}
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			if cmd.Flags().Changed("admin") {
				prof.Admin = admin
			}
			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials updated for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&token, "token", "", "Bearer token")
	set.Flags().BoolVar(&admin, "admin", false, "Set admin for profile")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			fmt.Printf("%s Profile: %s\n", ui.title("governor"), active)
			fmt.Printf("%s Base URL: %s\n", ui.info("•"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s Token:    %s\n", ui.info("•"), maskToken(prof.Token))
			fmt.Printf("%s Admin:    %v\n", ui.info("•"), prof.Admin)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.Token = ""
			cfg.Profiles[active] = prof
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Token cleared for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}

	auth.AddCommand(set, show, clear)
	return auth
}

func validateCmd(baseURL, token *string, admin *bool, ui *ui) *cobra.Command {
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validation operations",
	}

	var (
		scope       string
		priority    string
		description string
		input       string
		inputFile   string
		watch       bool
	)

	submit := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a validation",
		Example: "governor validate submit --scope security,data --description 'payments target state' --input-file design.md --watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := splitScope(scope)
			if len(kinds) == 0 {
				return errors.New("scope is required")
			}
			if inputFile != "" {
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return err
				}
				input = string(data)
			}

			c := newClient(*baseURL, *token, *admin)
			body := map[string]any{
				"scope":       kinds,
				"description": description,
				"input":       input,
			}
			if priority != "" {
				body["priority"] = priority
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Submitting validation..."
			spin.Start()
			status, resp, err := c.request("POST", "/v1/governor/validations", body)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out statusResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s Validation submitted: %s\n", ui.ok("[OK]"), out.ValidationID)
			if !watch {
				return nil
			}
			return watchValidation(c, out.ValidationID, ui)
		},
	}
	submit.Flags().StringVar(&scope, "scope", "", "Comma-separated agent kinds")
	submit.Flags().StringVar(&priority, "priority", "", "Priority: low|medium|high|critical")
	submit.Flags().StringVar(&description, "description", "", "What is being validated")
	submit.Flags().StringVar(&input, "input", "", "Architecture document text")
	submit.Flags().StringVar(&inputFile, "input-file", "", "Read document text from file")
	submit.Flags().BoolVar(&watch, "watch", false, "Poll until the validation finishes")

	statusCmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Get validation status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			status, resp, err := c.request("GET", "/v1/governor/validations/"+url.PathEscape(args[0])+"/status", nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out statusResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s %s %s (%d%%)\n", ui.info("[INFO]"), out.ValidationID, colorStatus(out.Status, ui), out.Progress)
			return nil
		},
	}

	results := &cobra.Command{
		Use:   "results <id>",
		Short: "Get validation results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching results..."
			spin.Start()
			status, resp, err := c.request("GET", "/v1/governor/validations/"+url.PathEscape(args[0])+"/results", nil)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			fmt.Println(string(resp))
			return nil
		},
	}

	validate.AddCommand(submit, statusCmd, results)
	return validate
}

func watchValidation(c *client, id string, ui *ui) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Validating"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	for {
		status, resp, err := c.request("GET", "/v1/governor/validations/"+url.PathEscape(id)+"/status", nil)
		if err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("error (%d): %s", status, string(resp))
		}
		var out statusResp
		if err := json.Unmarshal(resp, &out); err != nil {
			return err
		}
		_ = bar.Set(out.Progress)
		if out.Status == "COMPLETED" || out.Status == "FAILED" {
			_ = bar.Finish()
			fmt.Printf("%s Validation %s: %s\n", ui.ok("[OK]"), id, colorStatus(out.Status, ui))
			fmt.Printf("%s governor validate results %s\n", ui.dim("hint:"), id)
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func agentsCmd(baseURL, token *string, admin *bool, ui *ui) *cobra.Command {
	agents := &cobra.Command{
		Use:   "agents",
		Short: "Agent fleet operations",
	}

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			path := "/v1/governor/agents"
			if kind != "" {
				path += "?kind=" + url.QueryEscape(kind)
			}
			status, resp, err := c.request("GET", path, nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out struct {
				Agents []agentResp `json:"agents"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			for _, a := range out.Agents {
				fmt.Printf("%s %-16s %-10s health=%.1f %s\n", colorState(a.State, ui), a.Kind, a.State, a.HealthScore, ui.dim(a.ID))
			}
			return nil
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "Filter by agent kind")

	var registerKind, registerName string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a new agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(registerKind) == "" {
				return errors.New("kind is required")
			}
			c := newClient(*baseURL, *token, *admin)
			status, resp, err := c.request("POST", "/v1/governor/agents", map[string]any{
				"kind": registerKind,
				"name": registerName,
			})
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var a agentResp
			if err := json.Unmarshal(resp, &a); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s Agent registered: %s (%s)\n", ui.ok("[OK]"), a.ID, a.Kind)
			return nil
		},
	}
	register.Flags().StringVar(&registerKind, "kind", "", "Agent kind")
	register.Flags().StringVar(&registerName, "name", "", "Agent name")

	agents.AddCommand(list, register)
	for _, verb := range []string{"start", "stop", "restart"} {
		verb := verb
		agents.AddCommand(&cobra.Command{
			Use:   verb + " <id>",
			Short: strings.ToUpper(verb[:1]) + verb[1:] + " an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := newClient(*baseURL, *token, *admin)
				status, resp, err := c.request("POST", "/v1/governor/agents/"+url.PathEscape(args[0])+"/"+verb, nil)
				if err != nil {
					return err
				}
				if status >= 300 {
					return fmt.Errorf("error (%d): %s", status, string(resp))
				}
				var a agentResp
				if err := json.Unmarshal(resp, &a); err != nil {
					fmt.Println(string(resp))
					return nil
				}
				fmt.Printf("%s Agent %s is now %s\n", ui.ok("[OK]"), a.ID, colorState(a.State, ui))
				return nil
			},
		})
	}
	return agents
}

func swarmCmd(baseURL, token *string, admin *bool, ui *ui) *cobra.Command {
	status := &cobra.Command{
		Use:   "status",
		Short: "Show swarm status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			code, resp, err := c.request("GET", "/v1/governor/swarm/status", nil)
			if err != nil {
				return err
			}
			if code >= 300 {
				return fmt.Errorf("error (%d): %s", code, string(resp))
			}
			var out struct {
				Agents            int            `json:"agents"`
				ByState           map[string]int `json:"byState"`
				AverageHealth     float64        `json:"averageHealth"`
				ActiveValidations int            `json:"activeValidations"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s agents=%d avgHealth=%.1f activeValidations=%d\n",
				ui.title("swarm"), out.Agents, out.AverageHealth, out.ActiveValidations)
			for state, n := range out.ByState {
				fmt.Printf("  %s %s: %d\n", ui.info("•"), colorState(state, ui), n)
			}
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Swarm operations",
	}
	cmd.AddCommand(status)
	return cmd
}

func colorStatus(s string, ui *ui) string {
	switch s {
	case "COMPLETED":
		return ui.ok(s)
	case "FAILED":
		return ui.err(s)
	case "RUNNING":
		return ui.info(s)
	default:
		return ui.warn(s)
	}
}

func colorState(s string, ui *ui) string {
	switch s {
	case "ACTIVE":
		return ui.ok(s)
	case "ERROR":
		return ui.err(s)
	case "STOPPED":
		return ui.dim(s)
	default:
		return ui.warn(s)
	}
}

func newClient(baseURL, token string, admin bool) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		admin:      admin,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func isLocalURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || host == "127.0.0.1"
}

func splitScope(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func helpTemplate(ui *ui) string {
	title := ui.title("governor")
	return fmt.Sprintf(`%s - CLI for governor

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  governor init
  governor validate submit --scope security,data --input-file design.md --watch
  governor validate results <id>
  governor agents list
  governor swarm status

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("GOVERNOR_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".governor", "config.yaml")
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("GOVERNOR_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
