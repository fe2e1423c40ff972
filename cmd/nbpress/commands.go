package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"nbpress/internal/app"
	"nbpress/internal/publish"
	"nbpress/internal/search"
)

// withBackends loads configuration, builds the backends and runs fn.
func withBackends(cmd *cobra.Command, flags *globalFlags, opts backendOptions, fn func(context.Context, *backends) error) error {
	cfg, logger, err := flags.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := newBackends(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func publishCmd(flags *globalFlags, kind string) *cobra.Command {
	var (
		title string
		repo  string
		token string
	)
	cmd := &cobra.Command{
		Use:   kind + " FILE",
		Short: "Publish a notebook as a " + kind + " post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read notebook: %w", err)
			}
			in := app.PublishInput{Notebook: data, OwnerRepo: repo, Token: token, Title: title}
			if in.Title == "" {
				in.Title = titleFromPath(args[0])
			}

			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				var result app.PublishResult
				if kind == publish.StrategyBlog {
					result, err = b.service.PublishBlog(ctx, in)
				} else {
					result, err = b.service.PublishEbook(ctx, in)
				}
				if err != nil {
					return err
				}
				return printOutcome(cmd, result.Outcome)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token (defaults to NBPRESS_TOKEN or the stored token)")
	if kind == publish.StrategyBlog {
		cmd.Flags().StringVar(&title, "title", "", "Post title (defaults to the file name)")
		cmd.Flags().StringVar(&repo, "repo", "", "Blog repository as OWNER/REPO (defaults to the stored repository)")
	}
	return cmd
}

func printOutcome(cmd *cobra.Command, outcome publish.Outcome) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, outcome.Message())
	if outcome.Strategy == publish.StrategyBlog {
		fmt.Fprintf(out, "PostId: %s\n", outcome.DocumentID)
	}
	for _, failed := range outcome.Failed() {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", failed)
	}
	if outcome.Overall != publish.Success {
		return errPartialFailure
	}
	return nil
}

// titleFromPath names a post after its source file.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func loginCmd(flags *globalFlags) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify and store an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				if err := b.service.Login(ctx, token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token saved")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				if err := b.service.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
				return nil
			})
		},
	}
}

func repoCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage the blog repository",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set OWNER/REPO",
		Short: "Store the blog repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				if err := b.service.SetBlogRepo(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Blog repository set to %s\n", strings.TrimSpace(args[0]))
				return nil
			})
		},
	})
	return cmd
}

func historyCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history DOCUMENT_ID",
		Short: "List recorded publish attempts for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				attempts, err := b.service.History(ctx, args[0], limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tWHEN\tOUTCOME\tCHUNKS\tFAILED\tTARGET")
				for _, a := range attempts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s/%s@%s:%s\n",
						a.ID, a.CreatedAt.Local().Format(time.DateTime), a.Outcome, a.ChunkCount, a.Failed(),
						a.Owner, a.Repo, a.Branch, a.Path)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of attempts")
	return cmd
}

func searchCmd(flags *globalFlags) *cobra.Command {
	var (
		strategy string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search published posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				resp := b.service.Search(search.Query{Text: strings.Join(args, " "), Strategy: strategy, Limit: limit})
				out := cmd.OutOrStdout()
				for _, r := range resp.Results {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", r.Strategy, r.DocumentID, r.Title, r.Outcome)
				}
				fmt.Fprintf(out, "%d result(s)\n", resp.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "Restrict to blog or ebook")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	return cmd
}

func reindexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from publish history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				if b.search == nil {
					return errors.New("search is not configured")
				}
				n, err := b.search.ReindexFromPG(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d post(s)\n", n)
				return nil
			})
		},
	}
}

func archiveCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived payloads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls STRATEGY DOCUMENT_ID",
		Short: "List archived payloads of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{}, func(ctx context.Context, b *backends) error {
				if b.archive == nil {
					return errors.New("archive is not configured")
				}
				keys, err := b.archive.List(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	})
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the publish API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(cmd, flags, backendOptions{metrics: true}, func(ctx context.Context, b *backends) error {
				httpServer := app.NewHTTPServer(b.service, b.cfg.CORSOrigin)
				server := &http.Server{
					Addr:              b.cfg.Addr,
					Handler:           httpServer.Handler(),
					ReadHeaderTimeout: 10 * time.Second,
					ReadTimeout:       60 * time.Second,
					IdleTimeout:       60 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					b.logger.Info("nbpress listening", "addr", b.cfg.Addr, "version", Version)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
				}()

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigCh)
				select {
				case err := <-errCh:
					return fmt.Errorf("server failed: %w", err)
				case <-sigCh:
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					b.logger.Warn("shutdown error", "error", err)
				}
				return nil
			})
		},
	}
}
