package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/keepmind9/wirebot/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateConfig string
	validateJSON   bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	Config       string   `json:"config"`
	Backend      string   `json:"backend,omitempty"`
	RESTURL      string   `json:"rest_url,omitempty"`
	WebSocketURL string   `json:"ws_url,omitempty"`
	Store        string   `json:"store,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate wirebot configuration",
	Long: `Validate the wirebot configuration without connecting to Wire.

This command checks:
  - YAML syntax
  - Wire credentials (WIRE_EMAIL, WIRE_PASS)
  - Backend endpoints
  - HTTP router settings

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		result := validate(validateConfig)
		outputValidationResult(cmd.OutOrStdout(), result, validateJSON)
		if !result.Valid {
			os.Exit(1)
		}
	},
}

func validate(configFile string) ValidationResult {
	source := configFile
	if source == "" {
		source = "(environment)"
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Config: source,
			Errors: []string{err.Error()},
		}
	}

	restURL, wsURL := cfg.Wire.Endpoints()
	storePath, err := cfg.StorePath()
	if err != nil {
		storePath = cfg.Store.Path
	}

	return ValidationResult{
		Valid:        true,
		Config:       source,
		Backend:      cfg.Wire.Backend,
		RESTURL:      restURL,
		WebSocketURL: wsURL,
		Store:        storePath,
		Warnings:     validateConfigDetails(cfg),
	}
}

func validateConfigDetails(cfg *config.Config) []string {
	var warnings []string

	if cfg.Wire.ClientType == config.ClientTypeTemporary {
		warnings = append(warnings, "Temporary client registers a new device on every start")
	}
	if !cfg.HTTP.Enabled {
		warnings = append(warnings, "HTTP router is disabled - `wirebot status` will not be able to reach the robot")
	}
	if cfg.Logging.File == "" && !cfg.Logging.EnableStdout {
		warnings = append(warnings, "Logging has no file and stdout is disabled - logs are discarded")
	}

	return warnings
}

func outputValidationResult(w io.Writer, result ValidationResult, jsonOutput bool) {
	if jsonOutput {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(w, "✅ Configuration is valid")
		fmt.Fprintf(w, "  - Config: %s\n", result.Config)
		fmt.Fprintf(w, "  - Backend: %s (%s)\n", result.Backend, result.RESTURL)
		fmt.Fprintf(w, "  - Store: %s\n", result.Store)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(w, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(w, "❌ Configuration validation failed:")
	fmt.Fprintf(w, "  - Config: %s\n", result.Config)
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", errMsg)
		}
	}
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfig, "config", "c", "", "Configuration file path (default: environment only)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
