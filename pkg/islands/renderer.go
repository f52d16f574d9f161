package islands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
)

// Tag is the custom element islands are wrapped in.
const Tag = "candle-island"

// Render writes island wrapped around the markup produced by content.
// content may be nil for islands the client paints entirely.
func Render(ctx context.Context, w io.Writer, island *Island, content core.Renderer) error {
	var inner bytes.Buffer
	if content != nil {
		if err := content.Render(ctx, &inner); err != nil {
			return fmt.Errorf("render island %s: %w", island.ID, err)
		}
	}

	attrs := fmt.Sprintf(`id="%s" component="%s" hydrate="%s" priority="%d"`,
		html.EscapeString(island.ID),
		html.EscapeString(island.Component),
		island.Hydration,
		island.Priority,
	)
	if island.Hydration != HydrateNever {
		props, err := json.Marshal(island.Props)
		if err != nil {
			return fmt.Errorf("serialize island %s props: %w", island.ID, err)
		}
		attrs += fmt.Sprintf(` props='%s'`, html.EscapeString(string(props)))
	}

	_, err := fmt.Fprintf(w, "<%s %s>%s</%s>", Tag, attrs, inner.String(), Tag)
	return err
}

// RenderString is Render into a string.
func RenderString(ctx context.Context, island *Island, content core.Renderer) (string, error) {
	var buf bytes.Buffer
	if err := Render(ctx, &buf, island, content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseProps decodes the props attribute value of a rendered island.
func ParseProps(attr string) (map[string]any, error) {
	var props map[string]any
	if err := json.Unmarshal([]byte(html.UnescapeString(attr)), &props); err != nil {
		return nil, err
	}
	return props, nil
}
