package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/config"
	"github.com/sagarc03/cellar/storage"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Create or inspect the configuration file",
}

var configureInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file interactively",
	Long: `Write a configuration file interactively (default: ./config.yaml).

You will be prompted for:
  - Server port
  - Storage root and blob backend
  - S3 bucket settings, for the s3 backend
  - Database type and connection string
  - The first namespace to serve

The storage secret is never written. Provide it through
CELLAR_STORAGE_SECRET or --secret.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigureInit,
}

var configureShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging files, environment and flags.
The storage secret and S3 keys are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigureShow,
}

var configureForce bool

func init() {
	configureInitCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing file without asking")
	configureCmd.AddCommand(configureInitCmd)
	configureCmd.AddCommand(configureShowCmd)
	rootCmd.AddCommand(configureCmd)
}

// fileConfig is the subset of the configuration written by configure init.
type fileConfig struct {
	Server   fileServer               `yaml:"server"`
	Storage  fileStorage              `yaml:"storage"`
	Database fileDatabase             `yaml:"database"`
	Models   map[string]cellar.Schema `yaml:"models,omitempty"`
}

type fileServer struct {
	Port int `yaml:"port"`
}

type fileStorage struct {
	Root    string  `yaml:"root"`
	Backend string  `yaml:"backend"`
	S3      *fileS3 `yaml:"s3,omitempty"`
}

type fileS3 struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
	CreateBucket bool   `yaml:"create_bucket,omitempty"`
}

type fileDatabase struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn,omitempty"`
}

func runConfigureInit(_ *cobra.Command, args []string) error {
	path := "config.yaml"
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configureForce {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("%s already exists. Overwrite it", path),
			IsConfirm: true,
		}
		if _, promptErr := prompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	}

	cfg, err := promptConfig()
	if err != nil {
		return handlePromptError(err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s.\n", path)
	fmt.Println("Set the storage secret with CELLAR_STORAGE_SECRET before running cellar.")
	return nil
}

func promptConfig() (*fileConfig, error) {
	cfg := &fileConfig{}

	portStr, err := (&promptui.Prompt{
		Label:   "Server port",
		Default: "5708",
		Validate: func(input string) error {
			port, convErr := strconv.Atoi(input)
			if convErr != nil || port < 1 || port > 65535 {
				return errors.New("port must be between 1 and 65535")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	cfg.Storage.Root, err = (&promptui.Prompt{
		Label:    "Storage root",
		Default:  "./data",
		Validate: requireValue("storage root"),
	}).Run()
	if err != nil {
		return nil, err
	}

	_, cfg.Storage.Backend, err = (&promptui.Select{
		Label: "Blob backend",
		Items: []string{storage.BackendFilesystem, storage.BackendS3},
	}).Run()
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == storage.BackendS3 {
		if cfg.Storage.S3, err = promptS3(); err != nil {
			return nil, err
		}
	}

	_, cfg.Database.Type, err = (&promptui.Select{
		Label: "Database",
		Items: []string{"sqlite", "postgres"},
	}).Run()
	if err != nil {
		return nil, err
	}

	if cfg.Database.Type == "postgres" {
		cfg.Database.DSN, err = (&promptui.Prompt{
			Label:    "PostgreSQL DSN",
			Default:  "postgres://localhost:5432/cellar",
			Validate: requireValue("dsn"),
		}).Run()
		if err != nil {
			return nil, err
		}
	}

	ns, err := (&promptui.Prompt{
		Label:   "First namespace",
		Default: "files",
		Validate: func(input string) error {
			if !cellar.IsValidNamespace(input) {
				return errors.New("namespace must match ^[a-z0-9][a-z0-9_-]*$")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return nil, err
	}
	cfg.Models = map[string]cellar.Schema{ns: {}}

	return cfg, nil
}

func promptS3() (*fileS3, error) {
	s3 := &fileS3{}
	var err error

	s3.Bucket, err = (&promptui.Prompt{Label: "S3 bucket", Validate: requireValue("bucket")}).Run()
	if err != nil {
		return nil, err
	}

	s3.Region, err = (&promptui.Prompt{Label: "S3 region", Default: "us-east-1"}).Run()
	if err != nil {
		return nil, err
	}

	s3.Endpoint, err = (&promptui.Prompt{
		Label: "S3 endpoint (empty for AWS)",
		Validate: func(input string) error {
			if input == "" {
				return nil
			}
			u, parseErr := url.Parse(input)
			if parseErr != nil {
				return fmt.Errorf("invalid URL: %w", parseErr)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return errors.New("URL must start with http:// or https://")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return nil, err
	}

	if s3.Endpoint != "" {
		s3.UsePathStyle = true
		if _, confirmErr := (&promptui.Prompt{Label: "Create the bucket if missing", IsConfirm: true}).Run(); confirmErr == nil {
			s3.CreateBucket = true
		}
	}

	return s3, nil
}

func requireValue(name string) func(string) error {
	return func(input string) error {
		if input == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func runConfigureShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	shown := *cfg
	shown.Storage.Secret = maskSecret(cfg.Storage.Secret)
	shown.Storage.S3.AccessKeyID = maskSecret(cfg.Storage.S3.AccessKeyID)
	shown.Storage.S3.SecretAccessKey = maskSecret(cfg.Storage.S3.SecretAccessKey)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(shown); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}
	if errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}
