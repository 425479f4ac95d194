package mindmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youruser/mmedit/internal/config"
)

type fakeRenderer struct {
	draws  [][]*Node
	themes []Theme
	fits   int
}

func (r *fakeRenderer) Draw(nodes []*Node, theme Theme) {
	r.draws = append(r.draws, nodes)
	r.themes = append(r.themes, theme)
}

func (r *fakeRenderer) Fit() { r.fits++ }

func TestOutlineFromFlattened(t *testing.T) {
	tree := &Tree{Title: "T", Modules: []Module{{
		Name:    "Map",
		Content: "story one\nstory two",
		Requirements: &Requirements{
			Content:    "FR-1",
			Dimensions: Dimensions{UIUX: &Dimension{Content: "pins"}, Backend: &Dimension{Content: "api", Specs: &Specs{Content: "S1"}}},
		},
	}}}

	roots := Outline(Flatten(tree))
	require.Len(t, roots, 1)

	root := roots[0]
	assert.Equal(t, 1, root.Depth)
	assert.Equal(t, "T", root.Title)
	assert.Equal(t, 1, root.Line)
	require.Len(t, root.Children, 1)

	mod := root.Children[0]
	assert.Equal(t, "Map", mod.Title)
	assert.Equal(t, []string{"story one", "story two"}, mod.Lines)
	assert.Equal(t, "Map\nstory one\nstory two", mod.Text())
	assert.Equal(t, 3, mod.Line)

	require.Len(t, mod.Children, 1)
	req := mod.Children[0]
	assert.Equal(t, RequirementsHeading, req.Title)
	require.Len(t, req.Children, 2)
	assert.Equal(t, "UI/UX", req.Children[0].Title)
	assert.Equal(t, "Backend", req.Children[1].Title)

	require.Len(t, req.Children[1].Children, 1)
	spec := req.Children[1].Children[0]
	assert.Equal(t, 5, spec.Depth)
	assert.Equal(t, SpecsHeading, spec.Title)
	assert.Equal(t, []string{"S1"}, spec.Lines)
}

func TestOutlineKeepsInlineMarkup(t *testing.T) {
	roots := Outline("# T\n\n## **Bold** and `code`<br>see <https://x.test>\n\n")
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children, 1)
	n := roots[0].Children[0]
	assert.Equal(t, "Bold and code", n.Title)
	assert.Equal(t, []string{"see https://x.test"}, n.Lines)
}

func TestOutlineIgnoresNonHeadings(t *testing.T) {
	roots := Outline("intro paragraph\n\n# A\n\ntext\n\n# B\n")
	require.Len(t, roots, 2)
	assert.Equal(t, "A", roots[0].Title)
	assert.Equal(t, "B", roots[1].Title)
}

func TestViewAutoFit(t *testing.T) {
	r := &fakeRenderer{}
	v := NewView(r, ThemeDark)

	v.Render("# T\n\n", false)
	assert.Equal(t, 1, r.fits, "first render fits while auto-fit is enabled")

	v.DisableAutoFit()
	assert.False(t, v.AutoFitEnabled())

	v.Render("# T\n\n## A\n\n", false)
	assert.Equal(t, 1, r.fits, "redraw after auto-fit is disabled keeps zoom")

	v.Render("# T\n\n", true)
	assert.Equal(t, 2, r.fits, "explicit fit request always fits")

	v.Fit()
	assert.Equal(t, 3, r.fits)
	assert.Len(t, r.draws, 3)
}

func TestViewToggleThemeRedraws(t *testing.T) {
	r := &fakeRenderer{}
	v := NewView(r, ThemeDark)

	assert.Equal(t, ThemeLight, v.ToggleTheme())
	assert.Empty(t, r.draws, "nothing drawn yet, nothing to redraw")

	v.Render("# T\n\n", false)
	assert.Equal(t, ThemeDark, v.ToggleTheme())
	require.Len(t, r.themes, 2)
	assert.Equal(t, ThemeDark, r.themes[1])
	assert.Equal(t, 1, r.fits, "theme redraw does not fit")
}

func TestViewLimits(t *testing.T) {
	r := &fakeRenderer{}
	v := NewView(r, ThemeDark)
	v.SetLimits(config.Mindmap{MaxFrItems: 2, MaxDimensionItems: 1, MaxDescriptionLength: 5})

	md := "# T\n\n## Module name<br>x\n\n### 功能需求<br>a<br>b<br>c\n\n#### UI/UX<br>p<br>q\n\n"
	v.Render(md, false)

	require.Len(t, r.draws, 1)
	mod := r.draws[0][0].Children[0]
	assert.Equal(t, "Modul…", mod.Title)
	req := mod.Children[0]
	assert.Equal(t, []string{"a", "b"}, req.Lines)
	assert.Equal(t, []string{"p"}, req.Children[0].Lines)

	assert.Equal(t, md, v.Markdown(), "limits only affect drawn labels")
}

func TestViewReusesParsedOutline(t *testing.T) {
	r := &fakeRenderer{}
	v := NewView(r, ThemeDark)
	v.SetLimits(config.Mindmap{MaxFrItems: 1})

	md := "# T\n\n## M\n\n### 功能需求<br>a<br>b<br>c\n\n"
	v.Render(md, false)
	assert.Equal(t, []string{"a"}, r.draws[0][0].Children[0].Children[0].Lines)

	v.SetLimits(config.DefaultMindmap())
	v.Redraw()
	v.ToggleTheme()
	assert.Equal(t, 1, v.parses, "redraws of the same markdown parse once")
	assert.Equal(t, []string{"a", "b", "c"}, r.draws[1][0].Children[0].Children[0].Lines,
		"truncation of an earlier draw does not leak into the cached outline")

	v.Render("# Other\n\n", false)
	assert.Equal(t, 2, v.parses)
	assert.Equal(t, "Other", r.draws[3][0].Title)
}

func TestNodeColor(t *testing.T) {
	assert.Equal(t, "#4ECDC4", NodeColor(ThemeDark, 0))
	assert.Equal(t, "#4ECDC4", NodeColor(ThemeDark, 8))
	assert.Equal(t, "#E85D75", NodeColor(ThemeLight, 1))
	assert.True(t, strings.HasPrefix(NodeColor(Theme("unknown"), 2), "#"))
}

func TestParseTheme(t *testing.T) {
	assert.Equal(t, ThemeLight, ParseTheme("light"))
	assert.Equal(t, ThemeDark, ParseTheme("dark"))
	assert.Equal(t, ThemeDark, ParseTheme(""))
}
