// Package gitrepo is a local stand-in for the remote contents API: published
// files are committed into git repositories under a base directory, one
// repository per owner/repo and one commit per write.
package gitrepo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"nbpress/internal/contents"
)

// ErrInvalidTarget is returned for targets that would escape the mirror.
var ErrInvalidTarget = errors.New("invalid mirror target")

type Commit struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

type Mirror struct {
	baseDir string
	author  string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Mirror {
	return &Mirror{
		baseDir: baseDir,
		author:  "nbpress",
		locks:   make(map[string]*sync.Mutex),
	}
}

// Put commits the decoded payload to target.Path on target.Branch, creating
// the repository and branch on first use. Like the remote API it answers 201
// for a new file and 200 for an update; a payload that is not base64 or a
// path outside the repository answers 422.
func (m *Mirror) Put(ctx context.Context, target contents.Target, payload, message string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	repoDir, rel, err := m.resolve(target)
	if err != nil {
		return http.StatusUnprocessableEntity, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return http.StatusUnprocessableEntity, nil
	}

	lock := m.repoLock(repoDir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := m.ensureRepo(repoDir)
	if err != nil {
		return 0, err
	}
	if err := checkoutBranch(repo, target.Branch); err != nil {
		return 0, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return 0, fmt.Errorf("open worktree: %w", err)
	}
	full := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	status := http.StatusOK
	if _, err := os.Stat(full); errors.Is(err, os.ErrNotExist) {
		status = http.StatusCreated
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", rel, err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return 0, fmt.Errorf("git add %s: %w", rel, err)
	}
	if _, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            m.signature(),
	}); err != nil {
		return 0, fmt.Errorf("commit %s: %w", rel, err)
	}
	return status, nil
}

// CurrentSHA returns the git blob hash of target at the head of its branch.
func (m *Mirror) CurrentSHA(target contents.Target) (string, bool) {
	file, err := m.headFile(target)
	if err != nil {
		return "", false
	}
	return file.Hash.String(), true
}

// ReadFile returns the committed content of target at the head of its branch.
func (m *Mirror) ReadFile(target contents.Target) ([]byte, error) {
	file, err := m.headFile(target)
	if err != nil {
		return nil, err
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target.Path, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// History lists the commits on branch, newest first.
func (m *Mirror) History(owner, repoName, branch string, limit int) ([]Commit, error) {
	repoDir, _, err := m.resolve(contents.Target{Owner: owner, Repo: repoName, Branch: branch, Path: "x"})
	if err != nil {
		return nil, err
	}
	lock := m.repoLock(repoDir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0, max(limit, 0))
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, Commit{
			Hash:      c.Hash.String()[:7],
			Message:   c.Message,
			Author:    c.Author.Name,
			CreatedAt: c.Author.When,
		})
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (m *Mirror) headFile(target contents.Target) (*object.File, error) {
	repoDir, rel, err := m.resolve(target)
	if err != nil {
		return nil, err
	}
	lock := m.repoLock(repoDir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(target.Branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", target.Branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	file, err := commit.File(rel)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", rel, err)
	}
	return file, nil
}

func (m *Mirror) resolve(target contents.Target) (string, string, error) {
	for _, part := range []string{target.Owner, target.Repo} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidTarget, part)
		}
	}
	rel := path.Clean("/" + target.Path)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." || strings.HasPrefix(rel, ".git/") || rel == ".git" {
		return "", "", fmt.Errorf("%w: path %q", ErrInvalidTarget, target.Path)
	}
	return filepath.Join(m.baseDir, target.Owner, target.Repo), rel, nil
}

func (m *Mirror) ensureRepo(repoDir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(repoDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(repoDir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	hash, err := worktree.Commit("Initialize mirror", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            m.signature(),
	})
	if err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}
	mainRef := plumbing.NewBranchReferenceName("main")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(mainRef, hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, mainRef)); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (m *Mirror) signature() *object.Signature {
	return &object.Signature{
		Name:  m.author,
		Email: fmt.Sprintf("%s@local.nbpress", sanitizeEmail(m.author)),
		When:  time.Now(),
	}
}

func (m *Mirror) repoLock(repoDir string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	lock, ok := m.locks[repoDir]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	m.locks[repoDir] = lock
	return lock
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
