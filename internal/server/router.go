package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/loykin/braindump/internal/guard"
	"github.com/loykin/braindump/internal/health"
	"github.com/loykin/braindump/internal/metrics"
	"github.com/loykin/braindump/internal/post"
)

// Router serves the blog API.
// Endpoints:
//
//	GET  {basePath}/posts   query: page, limit, category, ascending
//	POST {basePath}/posts   body: {title, content, category?}
//	GET  /health
//	GET  {metricsPath}      Prometheus exposition, when metricsPath is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	posts    Posts
	guard    *guard.Guard
	health   *health.Reporter
	basePath string
	opts     Options
}

// Posts is the storage surface used by handlers. *pool.Manager satisfies it.
type Posts interface {
	ListPosts(ctx context.Context, q post.Query) ([]post.Post, error)
	CreatePost(ctx context.Context, d post.Draft) (post.Post, error)
}

type Options struct {
	BasePath    string
	MetricsPath string
	CORSOrigins []string
	Logger      *slog.Logger
}

func NewRouter(p Posts, g *guard.Guard, h *health.Reporter, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{posts: p, guard: g, health: h, basePath: sanitizeBase(opts.BasePath), opts: opts}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestID(), accessLog(r.opts.Logger), cors.New(corsConfig(r.opts.CORSOrigins)), observe())
	group := g.Group(r.basePath)
	group.GET("/posts", r.handleListPosts)
	group.POST("/posts", r.handleCreatePost)
	g.GET("/health", r.handleHealth)
	if mp := sanitizeBase(r.opts.MetricsPath); mp != "" {
		g.GET(mp, gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps handler in an http.Server with conservative timeouts.
// The caller starts and shuts it down.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

const (
	msgUnavailable = "Database temporarily unavailable"
	msgInternal    = "Internal server error"
)

func (r *Router) handleListPosts(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	var posts []post.Post
	err = r.guard.Do(c.Request.Context(), func(ctx context.Context) error {
		var err error
		posts, err = r.posts.ListPosts(ctx, q)
		return err
	})
	if err != nil {
		r.writeStorageError(c, "Error fetching posts", err)
		return
	}
	writeJSON(c, http.StatusOK, posts)
}

func (r *Router) handleCreatePost(c *gin.Context) {
	var d post.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := d.Validate(); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	var created post.Post
	err := r.guard.Do(c.Request.Context(), func(ctx context.Context) error {
		var err error
		created, err = r.posts.CreatePost(ctx, d.Normalize())
		return err
	})
	if err != nil {
		r.writeStorageError(c, "Error creating post", err)
		return
	}
	writeJSON(c, http.StatusCreated, created)
}

func (r *Router) handleHealth(c *gin.Context) {
	st := r.health.Check(c.Request.Context())
	writeJSON(c, st.HTTPStatus(), st)
}

func (r *Router) writeStorageError(c *gin.Context, msg string, err error) {
	log := r.opts.Logger.With("request_id", c.GetString(requestIDKey))
	if errors.Is(err, guard.ErrUnavailable) {
		log.Warn(msg, "error", err)
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: msgUnavailable})
		return
	}
	log.Error(msg, "error", err)
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: msgInternal})
}
