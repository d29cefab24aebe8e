package server

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/boxrender/internal/cache"
	"github.com/conneroisu/boxrender/internal/version"
)

type statusRow struct {
	label string
	value string
}

// statusSnapshot is everything shown on the status page
type statusSnapshot struct {
	version string
	rows    []statusRow
}

func (s *Server) snapshot() statusSnapshot {
	rows := []statusRow{
		{"store kind", s.kind},
		{"uptime", time.Since(s.started).Round(time.Second).String()},
		{"renders ok", fmt.Sprint(s.renders.ok.Load())},
		{"renders failed", fmt.Sprint(s.renders.failed.Load())},
		{"renders cancelled", fmt.Sprint(s.renders.cancelled.Load())},
		{"event subscribers", fmt.Sprint(s.hub.Clients())},
	}
	if src, ok := s.cache.(interface{ Stats() cache.Stats }); ok {
		st := src.Stats()
		rows = append(rows,
			statusRow{"cache hits", fmt.Sprint(st.Hits)},
			statusRow{"cache misses", fmt.Sprint(st.Misses)},
			statusRow{"cache writes", fmt.Sprint(st.Writes)},
		)
	}
	if s.config.VerifyHostname != "" {
		rows = append(rows, statusRow{"verified hostname", s.config.VerifyHostname})
	}

	return statusSnapshot{version: version.Get().Short(), rows: rows}
}

// statusPage renders the snapshot as a small HTML table
func statusPage(snap statusSnapshot) templ.Component {
	title := cases.Title(language.English)

	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>boxrender status</title>")
		b.WriteString("<style>body{font-family:system-ui,sans-serif;margin:2rem}th{text-align:left;padding-right:2rem}</style>")
		b.WriteString("</head><body><h1>boxrender</h1>")
		fmt.Fprintf(&b, "<p>Version %s</p><table>", templ.EscapeString(snap.version))
		for _, row := range snap.rows {
			fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>",
				templ.EscapeString(title.String(row.label)),
				templ.EscapeString(row.value))
		}
		b.WriteString("</table></body></html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}
