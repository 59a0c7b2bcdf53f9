package gitlab

import (
	"path"
	"regexp"
	"strings"
)

// uploadPattern matches upload paths embedded in GitLab markdown, e.g.
// "uploads/1a2b3c/screenshot.png".
var uploadPattern = regexp.MustCompile(`uploads/[a-zA-Z0-9/_.\-]+`)

// FindUploads extracts all upload paths referenced by the given texts,
// preserving first-seen order and dropping duplicates.
func FindUploads(texts ...string) []string {
	var found []string
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, match := range uploadPattern.FindAllString(text, -1) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			found = append(found, match)
		}
	}
	return found
}

// AttachmentURL resolves an upload path against the owning resource's web
// URL, e.g. "https://gitlab.example.com/acme/tools/foxy/uploads/<hash>/<file>".
func AttachmentURL(webURL, uploadPath string) string {
	base := webURL
	if i := strings.Index(base, "/-/"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(uploadPath, "/")
}

// WikiAttachmentURL resolves an upload path found in wiki content. Wiki
// uploads live under the "-/wikis/" prefix; paths already written as
// "uploads/-/..." are normalized first.
func WikiAttachmentURL(webURL, uploadPath string) string {
	uploadPath = strings.Replace(uploadPath, "uploads/-/", "uploads/", 1)
	return strings.TrimRight(webURL, "/") + "/-/wikis/" + strings.TrimLeft(uploadPath, "/")
}

// AttachmentName returns the local name for an upload: the path below the
// "uploads/" marker. The hash segment is kept so two uploads sharing a file
// name never collapse onto one local file.
func AttachmentName(uploadPath string) string {
	if i := strings.LastIndex(uploadPath, "uploads/"); i >= 0 {
		name := strings.TrimPrefix(uploadPath[i+len("uploads/"):], "-/")
		if name != "" && !strings.HasSuffix(name, "/") {
			return name
		}
	}
	return path.Base(uploadPath)
}

// RelativizeUploads rewrites absolute "/uploads/" links in markdown so the
// persisted copy resolves against the attachment files stored next to it.
func RelativizeUploads(text string) string {
	return strings.ReplaceAll(text, "/uploads/", "uploads/")
}
