package htmlrenderer

// docTemplate is the outer HTML5 document shell. It ranges only over the
// already-rendered []template.HTML slice (ordered, never a map), which
// keeps output byte-identical across runs for identical input.
const docTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{if .Page.SEOTitle}}{{.Page.SEOTitle}}{{else}}{{.Page.Title}}{{end}}</title>
{{if .Page.SEODescription}}<meta name="description" content="{{.Page.SEODescription}}">{{end}}
<meta property="og:title" content="{{if .Page.SEOTitle}}{{.Page.SEOTitle}}{{else}}{{.Page.Title}}{{end}}">
{{if .Page.SEODescription}}<meta property="og:description" content="{{.Page.SEODescription}}">{{end}}
<meta property="og:type" content="website">
<style>
:root {
  --color-primary: {{.Settings.Colors.Primary}};
  --color-secondary: {{.Settings.Colors.Secondary}};
  --color-bg: {{.Settings.Colors.Background}};
  --color-text: {{.Settings.Colors.Text}};
  --font-heading: {{.Settings.Fonts.Heading}};
  --font-body: {{.Settings.Fonts.Body}};
}
body { background: var(--color-bg); color: var(--color-text); font-family: var(--font-body); margin: 0; }
h1, h2, h3 { font-family: var(--font-heading); }
.grid-2 { display: grid; grid-template-columns: repeat(2, 1fr); gap: 1.5rem; }
.grid-3 { display: grid; grid-template-columns: repeat(3, 1fr); gap: 1.5rem; }
.grid-4 { display: grid; grid-template-columns: repeat(4, 1fr); gap: 1.5rem; }
@media (max-width: 768px) {
  .grid-3, .grid-4 { grid-template-columns: repeat(2, 1fr); }
}
@media (max-width: 480px) {
  .grid-2, .grid-3, .grid-4 { grid-template-columns: 1fr; }
}
</style>
</head>
<body>
{{if .Settings.Navigation}}<nav>
<ul>
{{range .Settings.Navigation}}<li><a href="{{.Path}}"{{if eq .Path $.Page.Path}} class="active" aria-current="page"{{end}}>{{.Label}}</a></li>
{{end}}</ul>
</nav>{{end}}
<main>
{{range .Sections}}{{.}}
{{end}}</main>
{{if .Settings.Footer}}<footer>
{{if .Settings.Footer.Text}}<p>{{.Settings.Footer.Text}}</p>{{end}}
{{if .Settings.Footer.Links}}<ul>
{{range .Settings.Footer.Links}}<li><a href="{{.Path}}">{{.Label}}</a></li>
{{end}}</ul>{{end}}
</footer>{{end}}
</body>
</html>
`

// sectionTemplates defines one named sub-template per SectionType variant,
// each scoped to its own typed Props field so html/template's
// context-sensitive auto-escaping applies to every piece of user-supplied
// text without any manual escaping in this package.
const sectionTemplates = `
{{define "hero"}}<section class="section-hero align-{{.Hero.Alignment}}">
<h1>{{.Hero.Heading}}</h1>
{{if .Hero.Subheading}}<p class="subheading">{{.Hero.Subheading}}</p>{{end}}
{{if .Hero.CTAText}}<a class="cta" href="{{.Hero.CTALink}}">{{.Hero.CTAText}}</a>{{end}}
</section>{{end}}

{{define "text"}}<section class="section-text align-{{.Text.Alignment}}">
{{if .Text.Heading}}<h2>{{.Text.Heading}}</h2>{{end}}
<p>{{.Text.Body}}</p>
</section>{{end}}

{{define "features"}}<section class="section-features">
{{if .Features.Heading}}<h2>{{.Features.Heading}}</h2>{{end}}
<div class="grid-{{gridColumns .Features.Columns}}">
{{range .Features.Items}}<div class="feature">
<span class="icon">{{icon .Icon}}</span>
<h3>{{.Title}}</h3>
<p>{{.Description}}</p>
</div>
{{end}}</div>
</section>{{end}}

{{define "cards"}}<section class="section-cards">
{{if .Cards.Heading}}<h2>{{.Cards.Heading}}</h2>{{end}}
<div class="grid-{{gridColumns .Cards.Columns}}">
{{range .Cards.Items}}<div class="card">
{{if .Image}}<img src="{{.Image}}" alt="{{.Title}}">{{end}}
<h3>{{.Title}}</h3>
<p>{{.Description}}</p>
{{if .Link}}<a href="{{.Link}}">Learn more</a>{{end}}
</div>
{{end}}</div>
</section>{{end}}

{{define "image"}}<section class="section-image{{if .Image.FullWidth}} full-width{{end}}">
<img src="{{.Image.Src}}" alt="{{.Image.Alt}}">
{{if .Image.Caption}}<figcaption>{{.Image.Caption}}</figcaption>{{end}}
</section>{{end}}

{{define "cta"}}<section class="section-cta variant-{{.CTA.Variant}}">
<h2>{{.CTA.Heading}}</h2>
{{if .CTA.Description}}<p>{{.CTA.Description}}</p>{{end}}
<a class="button" href="{{.CTA.ButtonLink}}">{{.CTA.ButtonText}}</a>
</section>{{end}}

{{define "unknown"}}<div class="section-unsupported">unsupported section type: {{.Type}}</div>{{end}}
`
