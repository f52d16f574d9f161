package storefront

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/islands"
)

// PreviewIsland is the island component that paints the candle scene.
const PreviewIsland = "candle-preview"

// NewIslandRegistry registers the islands the wizard page uses.
func NewIslandRegistry() *islands.Registry {
	reg := islands.NewRegistry()
	_ = reg.Register(&islands.Definition{
		Name:            PreviewIsland,
		DefaultPriority: islands.PriorityHigh,
		RequiredProps:   []string{"scene", "topic"},
		Scripts:         []string{"/static/candle-preview.js"},
		Styles:          []string{"/static/candle-preview.css"},
	})
	return reg
}

type pageRenderer struct {
	islands *islands.Registry
	title   string
}

// previewIsland builds the island for v's current scene.
func (r *pageRenderer) previewIsland(v *WizardView) (*islands.Island, error) {
	return r.islands.Create(PreviewIsland, map[string]any{
		"scene": v.Scene(),
		"topic": v.Topic(),
	}, islands.WithID("preview-"+v.session))
}

// island renders only the preview island.
func (r *pageRenderer) island(v *WizardView) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		island, err := r.previewIsland(v)
		if err != nil {
			return err
		}
		return islands.Render(ctx, w, island, nil)
	})
}

// page renders the full wizard page: step list, progress and preview.
func (r *pageRenderer) page(v *WizardView) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		vs := v.View()
		island, err := r.previewIsland(v)
		if err != nil {
			return err
		}
		page := islands.NewPage()
		page.Add(island)
		manifest := islands.BuildManifest(page, r.islands)

		var sb strings.Builder
		sb.WriteString("<!DOCTYPE html>\n<html lang=\"es\">\n<head>\n")
		sb.WriteString(`<meta charset="UTF-8">` + "\n")
		sb.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1.0">` + "\n")
		sb.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(r.title)))
		for _, href := range manifest.Styles {
			sb.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s">`+"\n", html.EscapeString(href)))
		}
		sb.WriteString("</head>\n<body>\n")

		sb.WriteString(fmt.Sprintf(`<main class="wizard" data-session="%s" data-step="%d">`+"\n",
			html.EscapeString(vs.Session), vs.CurrentStep))
		sb.WriteString(fmt.Sprintf(`<progress class="wizard-progress" max="100" value="%d">%d%%</progress>`+"\n",
			vs.Progress, vs.Progress))

		sb.WriteString(`<ol class="wizard-steps">` + "\n")
		for _, s := range vs.Steps {
			class := "step"
			if s.Completed {
				class += " step-done"
			}
			if s.Number == vs.CurrentStep {
				class += " step-current"
			}
			if s.Unlocked {
				sb.WriteString(fmt.Sprintf(`<li class="%s"><a href="%s">%s</a></li>`+"\n",
					class, html.EscapeString(s.URL), html.EscapeString(s.Name)))
			} else {
				sb.WriteString(fmt.Sprintf(`<li class="%s step-locked">%s</li>`+"\n",
					class, html.EscapeString(s.Name)))
			}
		}
		sb.WriteString("</ol>\n")

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
		if err := islands.Render(ctx, w, island, nil); err != nil {
			return err
		}

		sb.Reset()
		sb.WriteString("\n</main>\n")
		for _, src := range manifest.Scripts {
			sb.WriteString(fmt.Sprintf(`<script type="module" src="%s"></script>`+"\n", html.EscapeString(src)))
		}
		sb.WriteString("</body>\n</html>\n")
		_, err = io.WriteString(w, sb.String())
		return err
	})
}
