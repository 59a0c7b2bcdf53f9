package gitlab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindUploads(t *testing.T) {
	description := `Intro text.

![screenshot](/uploads/1a2b3c4d/screenshot.png)

See also [the doc](/uploads/9f8e7d6c/design_v2.pdf) and again
![screenshot](/uploads/1a2b3c4d/screenshot.png).`

	uploads := FindUploads(description)

	assert.Equal(t, []string{
		"uploads/1a2b3c4d/screenshot.png",
		"uploads/9f8e7d6c/design_v2.pdf",
	}, uploads)
}

func TestFindUploads_MultipleTexts(t *testing.T) {
	uploads := FindUploads(
		"![a](/uploads/aa/a.png)",
		"no uploads here",
		"![b](/uploads/bb/b.png) and ![a](/uploads/aa/a.png)",
	)

	assert.Equal(t, []string{"uploads/aa/a.png", "uploads/bb/b.png"}, uploads)
}

func TestFindUploads_None(t *testing.T) {
	assert.Empty(t, FindUploads("plain text without links"))
}

func TestAttachmentURL(t *testing.T) {
	got := AttachmentURL("https://gitlab.example.com/acme/tools/foxy", "uploads/abc/pic.png")
	assert.Equal(t, "https://gitlab.example.com/acme/tools/foxy/uploads/abc/pic.png", got)
}

func TestAttachmentURL_StripsWebSuffix(t *testing.T) {
	// Web URLs of sub-resources carry a "/-/" segment that uploads do not.
	got := AttachmentURL("https://gitlab.example.com/acme/foxy/-/issues/3", "uploads/abc/pic.png")
	assert.Equal(t, "https://gitlab.example.com/acme/foxy/uploads/abc/pic.png", got)
}

func TestWikiAttachmentURL(t *testing.T) {
	got := WikiAttachmentURL("https://gitlab.example.com/acme/foxy", "uploads/abc/diagram.png")
	assert.Equal(t, "https://gitlab.example.com/acme/foxy/-/wikis/uploads/abc/diagram.png", got)
}

func TestWikiAttachmentURL_NormalizesDashPrefix(t *testing.T) {
	got := WikiAttachmentURL("https://gitlab.example.com/acme/foxy", "uploads/-/abc/diagram.png")
	assert.Equal(t, "https://gitlab.example.com/acme/foxy/-/wikis/uploads/abc/diagram.png", got)
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "abc/pic.png", AttachmentName("uploads/abc/pic.png"))
	assert.Equal(t, "abc/pic.png", AttachmentName("https://gitlab.example.com/acme/foxy/uploads/abc/pic.png"))
	assert.Equal(t, "abc/pic.png", AttachmentName("uploads/-/abc/pic.png"))
	assert.Equal(t, "design_v2.pdf", AttachmentName("design_v2.pdf"))
}

func TestAttachmentName_SameFileNameStaysDistinct(t *testing.T) {
	a := AttachmentName("uploads/aaaa/report.pdf")
	b := AttachmentName("uploads/bbbb/report.pdf")
	assert.NotEqual(t, a, b)
}

func TestRelativizeUploads(t *testing.T) {
	in := "![a](/uploads/aa/a.png) and ![b](/uploads/bb/b.png)"
	out := RelativizeUploads(in)
	assert.Equal(t, "![a](uploads/aa/a.png) and ![b](uploads/bb/b.png)", out)
}
