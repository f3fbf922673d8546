package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/runnerfleet/runnerfleet/internal/artifact"
	"github.com/runnerfleet/runnerfleet/internal/cron"
	"github.com/runnerfleet/runnerfleet/internal/fleet"
	"github.com/runnerfleet/runnerfleet/internal/sysd"
	"github.com/runnerfleet/runnerfleet/pkg/api"
)

// engine bundles the wired collaborators for one CLI invocation.
type engine struct {
	cfg      fleet.Config
	manifest *fleet.Manifest
	service  *sysd.Systemctl
	sched    *cron.Scheduler
	reg      fleet.Registrar
}

// Wire up the engine from config
func resolveEngine(cmd *cobra.Command) (*engine, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := fleet.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	manifest, err := fleet.OpenManifest(filepath.Join(cfg.StateDir, "manifest.db"))
	if err != nil {
		return nil, err
	}
	return &engine{
		cfg:      cfg,
		manifest: manifest,
		service:  sysd.NewSystemctl(),
		sched: &cron.Scheduler{
			Store: &cron.Crontab{User: cfg.Principal},
			Lock:  cron.NewFileLock(filepath.Join(cfg.StateDir, "cron.lock")),
		},
		reg: &fleet.ScriptRegistrar{Principal: cfg.Principal},
	}, nil
}

func (e *engine) close() {
	_ = e.manifest.Close()
}

// specFromFlags merges a spec file and CLI flags over config defaults.
// Precedence: flags > spec file > config.
func specFromFlags(cmd *cobra.Command, e *engine) (fleet.Spec, error) {
	spec := fleet.Spec{
		Size:     e.cfg.Fleet.Size,
		BaseName: e.cfg.Fleet.Name,
		BaseDir:  e.cfg.Fleet.Dir,
		Labels:   e.cfg.Fleet.Labels,
		Repo:     e.cfg.Repo,
		Token:    e.cfg.Tokens.Register,
	}
	if path, _ := cmd.Flags().GetString("spec"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return spec, fmt.Errorf("read spec file: %w", err)
		}
		var fs api.FleetSpec
		if err := yaml.Unmarshal(b, &fs); err != nil {
			return spec, fmt.Errorf("parse spec file: %w", err)
		}
		if fs.Count != 0 {
			spec.Size = fs.Count
		}
		if fs.Name != "" {
			spec.BaseName = fs.Name
		}
		if fs.Dir != "" {
			spec.BaseDir = fs.Dir
		}
		if fs.Repo != "" {
			spec.Repo = fs.Repo
		}
		if len(fs.Labels) > 0 {
			spec.Labels = fs.Labels
		}
	}
	if cmd.Flags().Changed("count") {
		spec.Size, _ = cmd.Flags().GetInt("count")
	}
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		spec.BaseName = v
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		spec.BaseDir = v
	}
	if v, _ := cmd.Flags().GetStringSlice("labels"); len(v) > 0 {
		spec.Labels = v
	}
	if v, _ := cmd.Flags().GetString("repo"); v != "" {
		spec.Repo = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		spec.Token = v
	}
	return spec, nil
}

// Provision the fleet
func newUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision the runner fleet on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEngine(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			spec, err := specFromFlags(cmd, e)
			if err != nil {
				return err
			}

			src := artifact.Source{
				ReleaseURL: e.cfg.Release.URL,
				Version:    e.cfg.Release.Version,
			}
			if e.cfg.Mirror.Addr != "" {
				src.Mirror = &artifact.Mirror{
					Addr:       e.cfg.Mirror.Addr,
					User:       e.cfg.Mirror.User,
					KeyPath:    e.cfg.Mirror.KeyPath,
					KnownHosts: e.cfg.Mirror.KnownHosts,
					Dir:        e.cfg.Mirror.Dir,
				}
			}

			orc := &fleet.Orchestrator{
				Fetcher: artifact.NewFetcher(),
				Provisioner: &fleet.Provisioner{
					Service:   e.service,
					Registrar: e.reg,
					Principal: e.cfg.Principal,
					ServerURL: e.cfg.ServerURL,
				},
				Hardening: sysd.NewController(e.service, time.Duration(e.cfg.Defaults.GraceSeconds)*time.Second),
				Scheduler: e.sched,
				Manifest:  e.manifest,
				Source:    src,
			}

			outcomes, err := orc.Up(cmd.Context(), spec)
			printOutcomes(outcomes)
			return err
		},
	}
	cmd.Flags().String("spec", "", "fleet spec file (YAML)")
	cmd.Flags().Int("count", 1, "number of runner instances")
	cmd.Flags().String("name", "", "base instance name")
	cmd.Flags().String("dir", "", "base instance directory")
	cmd.Flags().StringSlice("labels", nil, "runner labels")
	cmd.Flags().String("repo", "", "repository identifier (owner/name)")
	cmd.Flags().String("token", "", "registration token (prefer RUNNER_TOKEN or secrets.env)")
	return cmd
}

// Tear the fleet down
func newDownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Deregister and remove all provisioned runner instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEngine(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			name := e.cfg.Fleet.Name
			dir := e.cfg.Fleet.Dir
			repo := e.cfg.Repo
			if v, _ := cmd.Flags().GetString("name"); v != "" {
				name = v
			}
			if v, _ := cmd.Flags().GetString("dir"); v != "" {
				dir = v
			}
			if v, _ := cmd.Flags().GetString("repo"); v != "" {
				repo = v
			}
			token := e.cfg.Tokens.Remove
			if v, _ := cmd.Flags().GetString("token"); v != "" {
				token = v
			}
			if token == "" {
				return fmt.Errorf("removal token is required (flag --token, RUNNER_REMOVE_TOKEN, or secrets.env)")
			}

			td := &fleet.Teardown{
				Service:   e.service,
				Registrar: e.reg,
				Scheduler: e.sched,
				Manifest:  e.manifest,
			}
			ids := td.Discover(cmd.Context(), name, dir, repo)
			if len(ids) == 0 {
				fmt.Println("no instances found")
				return nil
			}
			res := td.Down(cmd.Context(), ids, token)
			printTeardown(res)
			if res.Failed > 0 {
				return fmt.Errorf("teardown incomplete: %d of %d failed", res.Failed, res.Attempted)
			}
			return nil
		},
	}
	cmd.Flags().String("name", "", "base instance name")
	cmd.Flags().String("dir", "", "base instance directory")
	cmd.Flags().String("repo", "", "repository identifier (owner/name)")
	cmd.Flags().String("token", "", "removal token (prefer RUNNER_REMOVE_TOKEN or secrets.env)")
	return cmd
}

// Show instance status
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List provisioned instances and their service state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEngine(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			ids, err := e.manifest.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no instances recorded")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIR\tSERVICE\tACTIVE")
			for _, id := range ids {
				active, err := e.service.IsActive(id.Service)
				state := fmt.Sprintf("%t", active)
				if err != nil {
					state = "unknown"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id.Name, id.Dir, id.Service, state)
			}
			return w.Flush()
		},
	}
}

// Initialize configuration
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = fleet.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("config already exists at %s\n", path)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote default config to %s\n", path)
			return nil
		},
	}
}

// Shell completion
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			}
			return fmt.Errorf("unsupported shell: %s", args[0])
		},
	}
}

const defaultConfig = `fleet:
  name: runner
  dir: /opt/runner
  size: 1
  labels: []
repo: ""
server_url: https://github.com
principal: runner
release:
  url: ""
  version: ""
defaults:
  retries: 3
  timeout_seconds: 30
  grace_seconds: 5
`

func printOutcomes(outcomes []api.InstanceOutcome) {
	if len(outcomes) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tNAME\tSTATE\tHARDENING\tSTATUS\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", o.Index, o.Name, o.State, o.Hardening, o.Status, o.Error)
	}
	_ = w.Flush()
}

func printTeardown(res api.TeardownResult) {
	fmt.Printf("attempted %d, failed %d\n", res.Attempted, res.Failed)
	for _, f := range res.Failures {
		fmt.Printf("  %s: %s\n", f.Name, f.Reason)
	}
}
