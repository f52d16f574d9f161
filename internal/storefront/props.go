package storefront

import (
	"strings"

	"github.com/gabrielmiguelok/candlekit/pkg/preview"
	"github.com/gabrielmiguelok/candlekit/pkg/wizard"
)

// previewProps derives the renderer inputs from the wizard once, in one
// place. localPreview is the untruncated upload kept beside the state.
func previewProps(s wizard.State, localPreview, defaultModel string) preview.Props {
	p := preview.Props{
		WaxColor:    s.WaxColor,
		MessageText: s.Message,
		AutoRotate:  true,
	}
	if p.WaxColor == "" {
		p.WaxColor = preview.DefaultWaxColor
	}

	if l := s.Label; l != nil {
		switch {
		case localPreview != "":
			p.Label = preview.ImageLabel(localPreview)
		case l.ImageURL != "":
			p.Label = preview.ImageLabel(l.ImageURL)
		case strings.TrimSpace(l.Text) != "":
			p.Label = preview.TextLabel(l.Text)
		}
	}

	if a := s.AudioSelection; a != nil {
		p.ShowQR = true
		p.QRURL = a.ShareURL
	}

	switch {
	case s.ModelFile != nil && s.ModelFile.URL != "":
		p.CustomModelURL = s.ModelFile.URL
	case s.Container != nil && s.Container.ModelURL != "":
		p.CustomModelURL = s.Container.ModelURL
	default:
		p.CustomModelURL = defaultModel
	}
	return p
}
