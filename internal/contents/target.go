package contents

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidRepo is returned when a repository reference cannot be parsed.
var ErrInvalidRepo = errors.New("invalid repository reference")

// Target addresses one file on one branch of a repository.
type Target struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", t.Owner, t.Repo, t.Branch, t.Path)
}

// WithPath returns a copy of t addressing p.
func (t Target) WithPath(p string) Target {
	t.Path = p
	return t
}

func (t Target) contentsPath() string {
	segments := strings.Split(strings.Trim(t.Path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(t.Owner), url.PathEscape(t.Repo), strings.Join(segments, "/"))
}

// ParseOwnerRepo splits "owner/repo".
func ParseOwnerRepo(value string) (owner, repo string, err error) {
	owner, repo, found := strings.Cut(strings.TrimSpace(value), "/")
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: %q, expected owner/repo", ErrInvalidRepo, value)
	}
	return owner, repo, nil
}

// RepoFromURL takes owner and repo from the last two path segments of a
// repository URL such as https://github.com/owner/repo.
func RepoFromURL(raw string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRepo, err)
	}
	clean := strings.Trim(path.Clean("/"+u.Path), "/")
	segments := strings.Split(clean, "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("%w: %q has no owner/repo path", ErrInvalidRepo, raw)
	}
	owner = segments[len(segments)-2]
	repo = strings.TrimSuffix(segments[len(segments)-1], ".git")
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: %q has no owner/repo path", ErrInvalidRepo, raw)
	}
	return owner, repo, nil
}
