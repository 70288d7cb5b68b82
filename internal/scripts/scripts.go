// Package scripts holds the listeners every wirebot loads.
package scripts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/keepmind9/wirebot/internal/robot"
)

// Register adds the built-in listeners to r
func Register(r *robot.Robot) {
	name := r.Name()

	r.Respond(regexp.MustCompile(`(?i)ping$`), ping).
		Describe(name + " ping - Reply with PONG")
	r.Respond(regexp.MustCompile(`(?i)echo\s+(.+)$`), echo).
		Describe(name + " echo <text> - Reply back with <text>")
	r.Respond(regexp.MustCompile(`(?i)whoami$`), whoami).
		Describe(name + " whoami - Show what " + name + " knows about you")
	r.Respond(regexp.MustCompile(`(?i)status$`), status).
		Describe(name + " status - Show connection state and uptime")
	r.Respond(regexp.MustCompile(`(?i)help(?:\s+(.*))?$`), help).
		Describe(name + " help [query] - Show commands, optionally filtered by query")
}

func ping(res *robot.Response) {
	res.Reply("PONG")
}

func echo(res *robot.Response) {
	res.Send(strings.TrimSpace(res.Match[1]))
}

func whoami(res *robot.Response) {
	user := res.Message.User()
	if user == nil {
		res.Reply("I don't know who you are")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %s\n", user.ID)
	fmt.Fprintf(&b, "Name: %s", user.Name)
	if user.Alias != "" {
		fmt.Fprintf(&b, "\nHandle: @%s", user.Alias)
	}
	if res.Envelope.Room != "" {
		fmt.Fprintf(&b, "\nConversation: %s", res.Envelope.Room)
	}
	res.Reply(b.String())
}

func status(res *robot.Response) {
	health := res.Robot.Health()

	state := "disconnected"
	if health.Connected {
		state = "connected"
	}
	uptime := "not started"
	if !health.StartedAt.IsZero() {
		uptime = "started " + humanize.Time(health.StartedAt)
	}

	res.Send(fmt.Sprintf("%s via %s: %s, %s, knows %s",
		health.Name, health.Adapter, state, uptime, english.Plural(health.Users, "user", "users")))
}

func help(res *robot.Response) {
	commands := res.Robot.HelpCommands()

	if query := strings.TrimSpace(res.Match[1]); query != "" {
		var filtered []string
		for _, cmd := range commands {
			if strings.Contains(strings.ToLower(cmd), strings.ToLower(query)) {
				filtered = append(filtered, cmd)
			}
		}
		if len(filtered) == 0 {
			res.Send(fmt.Sprintf("No available commands match %s", query))
			return
		}
		commands = filtered
	}

	res.Send(strings.Join(commands, "\n"))
}
