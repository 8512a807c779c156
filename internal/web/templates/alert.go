// Package templates holds the HTML fragments served to HTMX clients.
package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// ErrorAlert renders an error message with its suggested action and code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="alert alert-error" role="alert"><p class="alert-message">`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(message)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</p>`); err != nil {
			return err
		}
		if action != "" {
			if _, err := io.WriteString(w, `<p class="alert-action">`+templ.EscapeString(action)+`</p>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `<p class="alert-code">Code: `+templ.EscapeString(code)+`</p></div>`)
		return err
	})
}

// RunSummary renders the outcome of a reconciliation run as a short status
// line for the upload form.
func RunSummary(dataset string, matched, submitted, applied, failed int, dryRun bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		verb := "updated"
		if dryRun {
			verb = "would update"
		}
		class := "alert alert-success"
		if failed > 0 {
			class = "alert alert-warning"
		}
		html := `<div class="` + class + `" role="status"><p>` +
			templ.EscapeString(dataset) + `: ` +
			strconv.Itoa(matched) + ` matched, ` +
			strconv.Itoa(submitted) + ` ` + verb
		if !dryRun {
			html += `, ` + strconv.Itoa(applied) + ` applied, ` + strconv.Itoa(failed) + ` failed`
		}
		html += `</p></div>`
		_, err := io.WriteString(w, html)
		return err
	})
}
