package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/sahilvermadev/mapx/internal/authstate"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q (use text, json or yaml)", format)
	}
}

func row(b *strings.Builder, key, value string) {
	b.WriteString(keyStyle.Render(key))
	b.WriteString(value)
	b.WriteString("\n")
}

// renderState formats st for a terminal. expires is the access token
// expiry; the zero time means unknown or never.
func renderState(st authstate.State, expires, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mapx session"))
	b.WriteString("\n\n")

	if !st.IsAuthenticated || st.User == nil {
		row(&b, "Status", warnStyle.Render("Not signed in"))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Run 'mapx auth callback <url>' to sign in."))
		b.WriteString("\n")
		return b.String()
	}

	u := st.User
	row(&b, "Status", okStyle.Render("Signed in"))
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	row(&b, "User", valueStyle.Render(name))
	if u.Email != "" {
		row(&b, "Email", valueStyle.Render(u.Email))
	}
	row(&b, "User ID", mutedStyle.Render(u.ID))

	switch {
	case st.UsernameStatus == nil:
		row(&b, "Username", mutedStyle.Render("unknown"))
	case st.UsernameStatus.HasUsername && st.UsernameStatus.Username != "":
		row(&b, "Username", valueStyle.Render("@"+st.UsernameStatus.Username))
	case st.UsernameStatus.HasUsername:
		row(&b, "Username", valueStyle.Render("set"))
	default:
		row(&b, "Username", warnStyle.Render("not set, onboarding pending"))
	}

	if !expires.IsZero() {
		left := expires.Sub(now).Round(time.Second)
		row(&b, "Access token", valueStyle.Render(fmt.Sprintf("expires %s (in %s)", expires.Local().Format(time.RFC3339), left)))
	}
	return b.String()
}
