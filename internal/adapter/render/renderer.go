package render

import (
	"context"
	"html"
	"strings"

	"github.com/inkwell/contractflow/internal/ports"
)

// Format selects how stored bodies are presented.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// Renderer prepares stored bodies for display. Bodies are opaque text; no
// markup in them is interpreted.
type Renderer struct {
	format Format
}

// NewRenderer creates a renderer; unknown formats fall back to FormatText.
func NewRenderer(format Format) *Renderer {
	if format != FormatHTML {
		format = FormatText
	}
	return &Renderer{format: format}
}

// RenderBody returns body as plain text or as escaped HTML.
func (r *Renderer) RenderBody(ctx context.Context, body string) (ports.Rendered, error) {
	if err := ctx.Err(); err != nil {
		return ports.Rendered{}, err
	}

	if r.format == FormatHTML {
		var b strings.Builder
		b.Grow(len(body) + 32)
		b.WriteString(`<pre class="contract-body">`)
		b.WriteString(html.EscapeString(body))
		b.WriteString(`</pre>`)
		return ports.Rendered{ContentType: "text/html; charset=utf-8", Content: b.String()}, nil
	}

	return ports.Rendered{ContentType: "text/plain; charset=utf-8", Content: body}, nil
}
