// Package htmlrenderer renders a Page into a standalone HTML5 document
// (§4.6): a pure, deterministic function of (Page, Site, SiteSettings) that
// identical inputs must always map to byte-identical output, since the
// build engine hashes the result for manifest stability.
//
// The icon-name-to-emoji mapping and the use of html/template with a
// FuncMap of small formatting helpers are grounded on the pack's
// process-dashboard template (evalgo-org-eve/templates/progress.go), which
// maps a state enum to an emoji the same way this package maps an icon
// name; html/template's contextual auto-escaping is what the spec's
// "all user-supplied text is HTML-escaped" invariant rides on.
package htmlrenderer

import (
	"bytes"
	"html/template"

	"github.com/R3E-Network/service_layer/domain/builder"
)

// Renderer renders Pages to HTML5 documents.
type Renderer struct {
	doc      *template.Template
	sections *template.Template
}

// New compiles the renderer's templates once.
func New() *Renderer {
	sections := template.Must(template.New("sections").Funcs(funcMap).Parse(sectionTemplates))
	doc := template.Must(template.New("doc").Funcs(funcMap).Parse(docTemplate))
	return &Renderer{doc: doc, sections: sections}
}

// pageView is the data passed to the document template.
type pageView struct {
	Page     builder.Page
	Site     builder.Site
	Settings builder.SiteSettings
	Sections []template.HTML
}

// Render produces the standalone HTML5 document for page within site.
func (r *Renderer) Render(page builder.Page, site builder.Site, settings builder.SiteSettings) (string, error) {
	rendered := make([]template.HTML, 0, len(page.Content.Sections))
	for _, section := range page.Content.Sections {
		html, err := r.renderSection(section)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, html)
	}

	view := pageView{Page: page, Site: site, Settings: settings, Sections: rendered}
	var buf bytes.Buffer
	if err := r.doc.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render404 renders the site-wide fallback page served when a requested
// path resolves to no Page.
func (r *Renderer) Render404(site builder.Site, settings builder.SiteSettings) (string, error) {
	page := builder.Page{
		Path:  "/404",
		Title: "Page not found",
		Content: builder.PageContent{
			Sections: []builder.Section{
				{
					Type: builder.SectionText,
					Text: &builder.TextProps{
						Heading:   "404",
						Body:      "The page you requested could not be found.",
						Alignment: builder.AlignCenter,
					},
				},
			},
		},
	}
	return r.Render(page, site, settings)
}

func (r *Renderer) renderSection(section builder.Section) (template.HTML, error) {
	name := sectionTemplateName(section.Type)
	var buf bytes.Buffer
	if err := r.sections.ExecuteTemplate(&buf, name, section); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func sectionTemplateName(t builder.SectionType) string {
	switch t {
	case builder.SectionHero:
		return "hero"
	case builder.SectionText:
		return "text"
	case builder.SectionFeatures:
		return "features"
	case builder.SectionCards:
		return "cards"
	case builder.SectionImage:
		return "image"
	case builder.SectionCTA:
		return "cta"
	default:
		return "unknown"
	}
}

// iconEmoji maps a known icon name to its emoji glyph; unknown names fall
// back to a default icon, per §4.6.
func iconEmoji(name string) string {
	switch name {
	case "code":
		return "💻"
	case "palette":
		return "🎨"
	case "rocket":
		return "🚀"
	case "star":
		return "⭐"
	case "shield":
		return "🛡️"
	case "zap":
		return "⚡"
	case "heart":
		return "❤️"
	case "globe":
		return "🌐"
	case "mail":
		return "✉️"
	case "phone":
		return "📞"
	case "settings":
		return "⚙️"
	case "check":
		return "✅"
	case "chart":
		return "📊"
	case "lock":
		return "🔒"
	case "cloud":
		return "☁️"
	case "users":
		return "👥"
	default:
		return "•"
	}
}

// gridColumnsClass returns the CSS grid-template-columns value for columns,
// clamped to the spec's supported {2,3,4} values.
func gridColumnsClass(columns int) int {
	switch columns {
	case 2, 3, 4:
		return columns
	default:
		return 3
	}
}

var funcMap = template.FuncMap{
	"icon":        iconEmoji,
	"gridColumns": gridColumnsClass,
}
