package sysd

import "fmt"

// Unit describes one runner instance's systemd service.
type Unit struct {
	Name        string
	Description string
	Dir         string
	User        string
	ExecStart   string
}

// Render produces the unit file text.
func (u Unit) Render() string {
	exec := u.ExecStart
	if exec == "" {
		exec = u.Dir + "/run.sh"
	}
	return fmt.Sprintf(`[Unit]
Description=%s
After=network.target

[Service]
ExecStart=%s
WorkingDirectory=%s
User=%s
KillMode=process
KillSignal=SIGTERM
Restart=always
RestartSec=2

[Install]
WantedBy=multi-user.target
`, u.Description, exec, u.Dir, u.User)
}
