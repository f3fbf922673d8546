package fleet

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RegisterParams carries everything the registration service needs for one
// instance. Token is single-use-window and short-lived.
type RegisterParams struct {
	ServerURL string
	Repo      string
	Token     string
	Name      string
	Labels    []string
	Replace   bool
}

// Registrar is the remote registration service collaborator. The production
// implementation drives the config script bundled inside the extracted runner
// package; tests substitute fakes.
type Registrar interface {
	Register(ctx context.Context, dir string, p RegisterParams) error
	Deregister(ctx context.Context, dir, name, token string) error
}

// ScriptRegistrar registers an instance by executing the agent's own config
// script in the instance directory, as the unprivileged principal.
type ScriptRegistrar struct {
	// Principal is the user the script runs as. Empty means the invoking user
	// (tests, or an operator already running unprivileged).
	Principal string

	// Script is the config script path relative to the instance directory.
	// Defaults to "config.sh".
	Script string
}

func (r *ScriptRegistrar) script() string {
	if r.Script != "" {
		return r.Script
	}
	return "config.sh"
}

func (r *ScriptRegistrar) Register(ctx context.Context, dir string, p RegisterParams) error {
	args := []string{
		"--unattended",
		"--url", fmt.Sprintf("%s/%s", strings.TrimRight(p.ServerURL, "/"), p.Repo),
		"--token", p.Token,
		"--name", p.Name,
		"--work", "_work",
	}
	if len(p.Labels) > 0 {
		args = append(args, "--labels", strings.Join(p.Labels, ","))
	}
	if p.Replace {
		args = append(args, "--replace")
	}
	if err := r.run(ctx, dir, args); err != nil {
		return err
	}
	return nil
}

func (r *ScriptRegistrar) Deregister(ctx context.Context, dir, name, token string) error {
	return r.run(ctx, dir, []string{"remove", "--token", token})
}

func (r *ScriptRegistrar) run(ctx context.Context, dir string, args []string) error {
	script := "./" + r.script()
	argv := append([]string{script}, args...)
	if r.Principal != "" {
		argv = append([]string{"sudo", "-n", "-u", r.Principal}, argv...)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return RegistrationError{
			Name:   dir,
			Output: redactTokens(strings.TrimSpace(string(out)), args),
			Err:    err,
		}
	}
	return nil
}

// redactTokens keeps token values out of error output.
func redactTokens(out string, args []string) string {
	for i, a := range args {
		if a == "--token" && i+1 < len(args) && args[i+1] != "" {
			out = strings.ReplaceAll(out, args[i+1], "***")
		}
	}
	return out
}
