package workspace

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"showrunner/internal/config"
	"showrunner/internal/services"
	"showrunner/internal/textutil"
)

// Layout subdirectories, one per artifact family. EnsureLayout creates all of
// them so stage bodies never have to mkdir.
var layoutDirs = []string{
	"media",
	"transcripts",
	"analysis",
	"narrative",
	"voiceover",
	"clips",
	"final",
}

// Workspace is the stable storage location for one episode.
type Workspace struct {
	Root string
	Slug string
}

// Resolve derives the workspace for a source input (URL or local media path)
// under the configured workspace directory. The same input always resolves to
// the same root, which is what makes skip-on-exists resumability work across
// runs.
func Resolve(cfg *config.Config, input string) (*Workspace, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, services.Wrap(services.ErrValidation, "", "resolve workspace", "empty source input", nil)
	}
	slug := SlugFor(input)
	return &Workspace{
		Root: filepath.Join(cfg.Paths.WorkspaceDir, slug),
		Slug: slug,
	}, nil
}

// Open wraps an explicit workspace root, for callers that already know the
// directory (API requests address workspaces by path).
func Open(root string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrValidation, "", "open workspace", "empty workspace root", nil)
	}
	expanded, err := config.ExpandPath(root)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "open workspace", "unresolvable workspace root", err)
	}
	return &Workspace{Root: expanded, Slug: filepath.Base(expanded)}, nil
}

// SlugFor derives a stable filesystem-safe identifier from a source input.
// URLs keep their host and last meaningful path segment; local paths keep
// their base name.
func SlugFor(input string) string {
	input = strings.TrimSpace(input)

	if parsed, err := url.Parse(input); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		// Video IDs carried in the query beat generic path segments like /watch.
		segment := parsed.Query().Get("v")
		if segment == "" {
			segment = lastPathSegment(parsed.Path)
		}
		host := strings.TrimPrefix(parsed.Hostname(), "www.")
		if segment == "" {
			return textutil.SanitizeToken(host)
		}
		return textutil.SanitizeToken(host + "-" + segment)
	}

	base := filepath.Base(input)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return textutil.SanitizeToken(base)
}

func lastPathSegment(path string) string {
	for _, segment := range reverseSegments(path) {
		if segment != "" {
			return segment
		}
	}
	return ""
}

func reverseSegments(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		out = append(out, strings.TrimSpace(parts[i]))
	}
	return out
}

// DisplayTitle renders the slug as a human-readable episode title.
func (w *Workspace) DisplayTitle() string {
	title := strings.NewReplacer("-", " ", "_", " ").Replace(w.Slug)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		title = "Unknown Episode"
	}
	return cases.Title(language.Und).String(title)
}

// EnsureLayout creates the workspace root and every layout subdirectory.
func (w *Workspace) EnsureLayout() error {
	for _, dir := range append([]string{""}, layoutDirs...) {
		if err := os.MkdirAll(filepath.Join(w.Root, dir), 0o755); err != nil {
			return fmt.Errorf("create workspace directory %q: %w", dir, err)
		}
	}
	return nil
}

// Path joins a workspace-relative artifact path onto the root.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// DiscoverOutput reports whether a stage's expected artifact already exists,
// returning its absolute path when present. Empty files do not count: a stage
// killed mid-write may leave a zero-byte artifact behind.
func (w *Workspace) DiscoverOutput(rel string) (string, bool) {
	target := w.Path(rel)
	info, err := os.Stat(target)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return target, true
}
