package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nbpress/internal/config"
	"nbpress/internal/contents"
	"nbpress/internal/metrics"
	"nbpress/internal/notebook"
	"nbpress/internal/prefs"
	"nbpress/internal/publish"
	"nbpress/internal/search"
	"nbpress/internal/store"
	"nbpress/internal/util"
)

type historyStore interface {
	RecordAttempt(context.Context, store.Attempt) error
	ListAttempts(context.Context, string, int) ([]store.Attempt, error)
	GetAttempt(context.Context, string) (store.Attempt, error)
	Ping(context.Context) error
}

type pinger interface {
	Ping(context.Context) error
}

// Deps are the optional collaborators of a Service. Nil members disable the
// corresponding feature.
type Deps struct {
	Contents *contents.Client

	// Mirror, when set, receives every write instead of the contents API.
	Mirror   publish.Putter
	Prefs    prefs.Store
	History  historyStore
	Search   *search.Service
	Metrics  *metrics.Recorder
	Archiver publish.Archiver
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	contents *contents.Client
	mirror   publish.Putter
	prefs    prefs.Store
	history  historyStore
	search   *search.Service
	metrics  *metrics.Recorder
	archiver publish.Archiver
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := deps.Contents
	if client == nil {
		client = contents.NewClient(contents.Config{BaseURL: cfg.APIBaseURL, Logger: logger})
	}
	return &Service{
		cfg:      cfg,
		contents: client,
		mirror:   deps.Mirror,
		prefs:    deps.Prefs,
		history:  deps.History,
		search:   deps.Search,
		metrics:  deps.Metrics,
		archiver: deps.Archiver,
		logger:   logger,
		now:      time.Now,
	}
}

// PublishInput is one publish request. Token and OwnerRepo fall back to the
// configured and then the stored preference.
type PublishInput struct {
	Notebook  []byte
	OwnerRepo string
	Token     string

	// Title names a blog post; usually the source file name.
	Title string
}

type PublishResult struct {
	AttemptID string
	Outcome   publish.Outcome
}

func (s *Service) PublishBlog(ctx context.Context, in PublishInput) (PublishResult, error) {
	owner, repo, err := s.blogRepo(ctx, in.OwnerRepo)
	if err != nil {
		return PublishResult{}, err
	}
	return s.publish(ctx, in, publish.BlogStrategy{
		Owner:  owner,
		Repo:   repo,
		Branch: s.cfg.Branch,
		Dir:    s.cfg.BlogDir,
		Title:  in.Title,
		Now:    s.now,
	})
}

func (s *Service) PublishEbook(ctx context.Context, in PublishInput) (PublishResult, error) {
	return s.publish(ctx, in, publish.EbookStrategy{Branch: s.cfg.Branch})
}

func (s *Service) publish(ctx context.Context, in PublishInput, strategy publish.Strategy) (PublishResult, error) {
	doc, err := notebook.Parse(in.Notebook)
	if err != nil {
		return PublishResult{}, err
	}
	plan, err := strategy.Resolve(doc)
	if err != nil {
		return PublishResult{}, err
	}
	putter, err := s.putter(ctx, in.Token)
	if err != nil {
		return PublishResult{}, err
	}

	outcome, err := publish.NewCoordinator(putter, s.coordinatorOptions()...).Publish(ctx, doc, plan)
	if err != nil {
		return PublishResult{}, err
	}

	publishedAt := s.now().UTC()
	result := PublishResult{Outcome: outcome}
	result.AttemptID = s.recordAttempt(ctx, outcome, publishedAt)
	if s.search != nil {
		s.search.IndexPost(PostRecordFromOutcome(outcome, publishedAt))
	}
	return result, nil
}

func (s *Service) coordinatorOptions() []publish.Option {
	opts := []publish.Option{
		publish.WithChunkLimit(s.cfg.ChunkLimit),
		publish.WithStagger(s.cfg.Stagger),
		publish.WithLogger(s.logger),
	}
	if s.cfg.CommitMessage != "" {
		opts = append(opts, publish.WithCommitMessage(s.cfg.CommitMessage))
	}
	if s.archiver != nil {
		opts = append(opts, publish.WithArchiver(s.archiver))
	}
	if s.metrics != nil {
		opts = append(opts, publish.WithRecorder(s.metrics))
	}
	return opts
}

func (s *Service) putter(ctx context.Context, explicit string) (publish.Putter, error) {
	if s.mirror != nil {
		return s.mirror, nil
	}
	token, err := s.accessToken(ctx, explicit)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errTokenRequired
	}
	return s.contents.WithToken(token), nil
}

func (s *Service) accessToken(ctx context.Context, explicit string) (string, error) {
	if token := strings.TrimSpace(explicit); token != "" {
		return token, nil
	}
	if s.cfg.AccessToken != "" {
		return s.cfg.AccessToken, nil
	}
	if s.prefs == nil {
		return "", nil
	}
	token, err := s.prefs.AccessToken(ctx)
	if errors.Is(err, prefs.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load access token: %w", err)
	}
	return token, nil
}

// blogRepo returns an empty owner and repo when none is known; the blog
// strategy reports that as ErrNoRepository.
func (s *Service) blogRepo(ctx context.Context, explicit string) (string, string, error) {
	value := strings.TrimSpace(explicit)
	if value == "" {
		value = s.cfg.OwnerRepo
	}
	if value == "" && s.prefs != nil {
		stored, err := s.prefs.BlogRepo(ctx)
		if err != nil && !errors.Is(err, prefs.ErrNotFound) {
			return "", "", fmt.Errorf("load blog repository: %w", err)
		}
		value = stored
	}
	if value == "" {
		return "", "", nil
	}
	return contents.ParseOwnerRepo(value)
}

func (s *Service) recordAttempt(ctx context.Context, outcome publish.Outcome, at time.Time) string {
	if s.history == nil {
		return ""
	}
	attempt := AttemptFromOutcome(util.NewID("pub"), outcome, at)
	if err := s.history.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("record publish attempt", "document_id", outcome.DocumentID, "error", err)
		return ""
	}
	return attempt.ID
}

// AttemptFromOutcome converts a finished publish into its history record.
func AttemptFromOutcome(id string, outcome publish.Outcome, at time.Time) store.Attempt {
	attempt := store.Attempt{
		ID:           id,
		DocumentID:   outcome.DocumentID,
		Strategy:     outcome.Strategy,
		Title:        outcome.Title,
		Owner:        outcome.Target.Owner,
		Repo:         outcome.Target.Repo,
		Branch:       outcome.Target.Branch,
		Path:         outcome.Target.Path,
		ChunkCount:   len(outcome.Chunks),
		PayloadBytes: outcome.PayloadBytes,
		Outcome:      outcome.Overall.String(),
		CreatedAt:    at,
	}
	for _, c := range outcome.Chunks {
		record := store.ChunkRecord{Index: c.Index, Path: c.Path, StatusCode: c.Code}
		if c.Err != nil {
			record.Error = c.Err.Error()
		}
		attempt.Chunks = append(attempt.Chunks, record)
	}
	return attempt
}

// PostRecordFromOutcome builds the search record for a finished publish.
func PostRecordFromOutcome(outcome publish.Outcome, at time.Time) search.PostRecord {
	return search.PostRecord{
		ID:          search.RecordID(outcome.Strategy, outcome.DocumentID),
		DocumentID:  outcome.DocumentID,
		Strategy:    outcome.Strategy,
		Title:       outcome.Title,
		Repo:        outcome.Target.Owner + "/" + outcome.Target.Repo,
		Path:        outcome.Target.Path,
		Outcome:     outcome.Overall.String(),
		PublishedAt: at.Unix(),
	}
}

// Login verifies token against the blog repository, when one is known, and
// stores it.
func (s *Service) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "token is required", nil)
	}
	if s.prefs == nil {
		return errPrefsDisabled
	}
	if err := s.VerifyToken(ctx, token); err != nil {
		return err
	}
	if err := s.prefs.SetAccessToken(ctx, token); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	s.logger.Info("access token stored")
	return nil
}

// VerifyToken checks that the contents API accepts token for the blog
// repository. Without a known repository or in mirror mode it is a no-op.
func (s *Service) VerifyToken(ctx context.Context, token string) error {
	if s.mirror != nil {
		return nil
	}
	owner, repo, err := s.blogRepo(ctx, "")
	if err != nil {
		return err
	}
	if owner == "" {
		s.logger.Debug("no blog repository configured, skipping token verification")
		return nil
	}
	err = s.contents.WithToken(token).Verify(ctx, owner, repo, s.cfg.Branch)
	switch {
	case err == nil:
		return nil
	case contents.IsUnauthorized(err):
		return domainError(http.StatusUnauthorized, "TOKEN_REJECTED", "The access token was rejected", nil)
	case contents.IsNotFound(err):
		return domainError(http.StatusNotFound, "REPOSITORY_NOT_FOUND", fmt.Sprintf("%s/%s@%s is not visible with this token", owner, repo, s.cfg.Branch), nil)
	default:
		return fmt.Errorf("verify token: %w", err)
	}
}

func (s *Service) Logout(ctx context.Context) error {
	if s.prefs == nil {
		return errPrefsDisabled
	}
	return s.prefs.ClearAccessToken(ctx)
}

func (s *Service) SetBlogRepo(ctx context.Context, ownerRepo string) error {
	if s.prefs == nil {
		return errPrefsDisabled
	}
	owner, repo, err := contents.ParseOwnerRepo(ownerRepo)
	if err != nil {
		return err
	}
	return s.prefs.SetBlogRepo(ctx, owner+"/"+repo)
}

func (s *Service) History(ctx context.Context, documentID string, limit int) ([]store.Attempt, error) {
	if s.history == nil {
		return nil, errHistoryDisabled
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "documentId is required", nil)
	}
	return s.history.ListAttempts(ctx, documentID, limit)
}

func (s *Service) Attempt(ctx context.Context, id string) (store.Attempt, error) {
	if s.history == nil {
		return store.Attempt{}, errHistoryDisabled
	}
	return s.history.GetAttempt(ctx, id)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// Ready pings every configured backend and returns a check per backend.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{}
	check := func(name string, p pinger) {
		if err := p.Ping(ctx); err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	if s.history != nil {
		check("database", s.history)
	}
	if p, ok := s.prefs.(pinger); ok {
		check("redis", p)
	}
	return ready, checks
}

func (s *Service) MetricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Handler()
}

func (s *Service) ServeToken() string {
	return s.cfg.ServeToken
}
