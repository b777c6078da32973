package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/pkg/client"
)

// Messages shown after a submission.
const (
	msgCreated      = "Post created successfully!"
	msgSubmitFailed = "Failed to submit post."
)

// APIFlags select the API endpoint for client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

func (f *APIFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.URL, "api-url", client.DefaultConfig().BaseURL, "API base URL")
	cmd.Flags().DurationVar(&f.Timeout, "api-timeout", client.DefaultConfig().Timeout, "per-attempt request timeout")
}

func (f *APIFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: f.URL, Timeout: f.Timeout})
}

// ListFlags hold the posts list query.
type ListFlags struct {
	APIFlags
	Page      int
	Limit     int
	Category  string
	Ascending bool
	All       bool
}

// CreateFlags hold a new post.
type CreateFlags struct {
	APIFlags
	Title    string
	Content  string
	Category string
}

func createPostsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Read and write posts through the API",
	}
	cmd.AddCommand(createPostsListCommand(), createPostsCreateCommand())
	return cmd
}

func createPostsListCommand() *cobra.Command {
	flags := &ListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Long: `List posts one page at a time, or every page with --all.

Examples:
  braindump posts list
  braindump posts list --category idea --page 1
  braindump posts list --ascending --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostsList(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	flags.APIFlags.bind(cmd)
	cmd.Flags().IntVar(&flags.Page, "page", 0, "zero-based page number")
	cmd.Flags().IntVar(&flags.Limit, "limit", post.DefaultLimit, "posts per page")
	cmd.Flags().StringVar(&flags.Category, "category", "", "only posts in this category")
	cmd.Flags().BoolVar(&flags.Ascending, "ascending", false, "oldest first")
	cmd.Flags().BoolVar(&flags.All, "all", false, "keep loading pages until the last one")
	return cmd
}

func runPostsList(ctx context.Context, out io.Writer, f ListFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c := f.client()
	if !f.All {
		posts, err := c.ListPosts(ctx, post.Query{Page: f.Page, Limit: f.Limit, Category: f.Category, Ascending: f.Ascending})
		if err != nil {
			_, _ = fmt.Fprintln(out, client.FailureMessage)
			return err
		}
		printPosts(out, posts)
		return nil
	}

	feed := client.NewFeed(c, f.Limit)
	if err := feed.SetFilter(ctx, f.Category, f.Ascending); err != nil {
		_, _ = fmt.Fprintln(out, feed.Message())
		return err
	}
	for feed.HasMore() {
		if err := feed.LoadMore(ctx); err != nil {
			printPosts(out, feed.Posts())
			return err
		}
	}
	printPosts(out, feed.Posts())
	return nil
}

func printPosts(out io.Writer, posts []post.Post) {
	if len(posts) == 0 {
		_, _ = fmt.Fprintln(out, "No posts yet.")
		return
	}
	for _, p := range posts {
		_, _ = fmt.Fprintf(out, "#%d [%s] %s  (%s)\n", p.ID, p.Category, p.Title, p.CreatedAt.Local().Format("2006-01-02 15:04"))
		for _, line := range strings.Split(strings.TrimRight(p.Content, "\n"), "\n") {
			_, _ = fmt.Fprintf(out, "    %s\n", line)
		}
	}
}

func createPostsCreateCommand() *cobra.Command {
	flags := &CreateFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new post",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostsCreate(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	flags.APIFlags.bind(cmd)
	cmd.Flags().StringVar(&flags.Title, "title", "", "post title (required)")
	cmd.Flags().StringVar(&flags.Content, "content", "", "post body (required)")
	cmd.Flags().StringVar(&flags.Category, "category", post.DefaultCategory, "post category")
	return cmd
}

func runPostsCreate(ctx context.Context, out io.Writer, f CreateFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := f.client().CreatePost(ctx, post.Draft{Title: f.Title, Content: f.Content, Category: f.Category})
	if err != nil {
		_, _ = fmt.Fprintln(out, msgSubmitFailed)
		return err
	}
	_, _ = fmt.Fprintln(out, msgCreated)
	_, _ = fmt.Fprintf(out, "#%d [%s] %s\n", p.ID, p.Category, p.Title)
	return nil
}
