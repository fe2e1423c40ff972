package publish

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"nbpress/internal/contents"
	"nbpress/internal/frontmatter"
	"nbpress/internal/notebook"
)

var (
	// ErrMalformedDocument is returned before any network call when the
	// document lacks what the publish target needs.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrNoRepository is returned when no destination repository is known.
	ErrNoRepository = errors.New("no destination repository")
)

const (
	StrategyBlog  = "blog"
	StrategyEbook = "ebook"

	// DefaultBranch is the branch written to when none is configured.
	DefaultBranch = "MeatPieDay"

	postIDLayout = "2006-01-02-150405"
)

// Plan is everything the coordinator needs to publish one document.
type Plan struct {
	Strategy    string
	DocumentID  string
	Title       string
	Target      contents.Target
	FrontMatter frontmatter.Directives
}

// Strategy decides where and how a document is published.
type Strategy interface {
	Resolve(doc *notebook.Document) (Plan, error)
}

// BlogStrategy publishes a post to {Dir}/{PostId}.ipynb in a fixed
// repository, stamping PostId and Title into a fresh first cell.
type BlogStrategy struct {
	Owner  string
	Repo   string
	Branch string
	Dir    string
	// Title overrides the Title directive, typically the source file name.
	Title string
	Now   func() time.Time
}

func (s BlogStrategy) Resolve(doc *notebook.Document) (Plan, error) {
	if doc == nil || len(doc.Cells) == 0 {
		return Plan{}, fmt.Errorf("%w: no cells", ErrMalformedDocument)
	}
	if s.Owner == "" || s.Repo == "" {
		return Plan{}, ErrNoRepository
	}

	fm, _ := frontmatter.Extract(doc)
	postID, ok := fm.Get(frontmatter.KeyPostID)
	if !ok {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		postID = now().Format(postIDLayout)
	}

	title := strings.TrimSpace(s.Title)
	if title == "" {
		title, _ = fm.Get(frontmatter.KeyTitle)
	}
	if title == "" {
		return Plan{}, fmt.Errorf("%w: no title", ErrMalformedDocument)
	}

	return Plan{
		Strategy:   StrategyBlog,
		DocumentID: postID,
		Title:      title,
		Target: contents.Target{
			Owner:  s.Owner,
			Repo:   s.Repo,
			Branch: branchOrDefault(s.Branch),
			Path:   path.Join(s.Dir, postID+".ipynb"),
		},
		FrontMatter: frontmatter.Directives{
			{Key: frontmatter.KeyPostID, Value: postID},
			{Key: frontmatter.KeyTitle, Value: title},
		},
	}, nil
}

// EbookStrategy publishes a chapter to the repository and file named by the
// document's own GithubUrl and FileName directives. The document is written
// as-is.
type EbookStrategy struct {
	Branch string
}

func (s EbookStrategy) Resolve(doc *notebook.Document) (Plan, error) {
	if doc == nil || len(doc.Cells) == 0 {
		return Plan{}, fmt.Errorf("%w: no cells", ErrMalformedDocument)
	}
	fm, _ := frontmatter.Extract(doc)
	repoURL, ok := fm.Get(frontmatter.KeyGithubURL)
	if !ok {
		return Plan{}, fmt.Errorf("%w: missing %s", ErrMalformedDocument, frontmatter.KeyGithubURL)
	}
	fileName, ok := fm.Get(frontmatter.KeyFileName)
	if !ok {
		return Plan{}, fmt.Errorf("%w: missing %s", ErrMalformedDocument, frontmatter.KeyFileName)
	}
	owner, repo, err := contents.RepoFromURL(repoURL)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	fileName = strings.TrimPrefix(fileName, "/")
	base := path.Base(fileName)
	id := strings.TrimSuffix(base, path.Ext(base))
	title, ok := fm.Get(frontmatter.KeyTitle)
	if !ok {
		title = id
	}

	return Plan{
		Strategy:   StrategyEbook,
		DocumentID: id,
		Title:      title,
		Target: contents.Target{
			Owner:  owner,
			Repo:   repo,
			Branch: branchOrDefault(s.Branch),
			Path:   fileName,
		},
	}, nil
}

func branchOrDefault(branch string) string {
	if branch == "" {
		return DefaultBranch
	}
	return branch
}

// chunkPath places chunk i of a split document next to its canonical path:
// {dir}/{documentID}/{i:04d}.part.
func chunkPath(plan Plan, index int) string {
	return path.Join(path.Dir(plan.Target.Path), plan.DocumentID, fmt.Sprintf("%04d.part", index))
}
