// Package dashboard serves the product-match browser: a venue selector, the matched
// products in a two-column table and a generated sales pitch pushed over a websocket.
package dashboard

import (
	"context"
	"embed"
	stderrors "errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/llm"
	"github.com/kapu/venue-match-go/internal/prompt"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	pitchTimeout    = 2 * time.Minute
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

var errUnknownVenue = stderrors.New("unknown venue")

// MatchLoader returns the current venue → products map.
type MatchLoader func() (domain.ProductMatches, error)

type Server struct {
	load     MatchLoader
	llm      llm.Completer
	prompts  *prompt.PromptBuilder
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   *gin.Engine
}

type pitchMessage struct {
	Type  string `json:"type"`
	Venue string `json:"venue"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type indexPage struct {
	Venues   []string
	Selected string
	Rows     []Row
	Error    string
}

// NewServer builds the dashboard. A nil prompts gets a builder of its own.
func NewServer(load MatchLoader, completer llm.Completer, prompts *prompt.PromptBuilder, logger *zap.Logger) (*Server, error) {
	if prompts == nil {
		prompts = prompt.NewPromptBuilder()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.SetHTMLTemplate(tmpl)

	s := &Server{
		load:    load,
		llm:     completer,
		prompts: prompts,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		router: router,
	}

	router.GET("/", s.handleIndex)
	router.GET("/ws/pitch", s.handlePitch)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Dashboard shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleIndex(c *gin.Context) {
	matches, err := s.load()
	if err != nil {
		s.logger.Error("Error loading product matches", zap.Error(err))
		c.HTML(http.StatusInternalServerError, "index.tmpl", indexPage{
			Error: "Error loading product matches: " + err.Error(),
		})
		return
	}

	page := indexPage{Venues: matches.VenueNames()}
	if venue := c.Query("venue"); venue != "" {
		products, ok := matches[venue]
		if !ok {
			page.Error = "Unknown venue: " + venue
		} else {
			page.Selected = venue
			page.Rows = TwoColumn(products)
		}
	}
	c.HTML(http.StatusOK, "index.tmpl", page)
}

// handlePitch upgrades to a websocket, sends one pitch message and closes.
func (s *Server) handlePitch(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	venue := c.Query("venue")
	msg := pitchMessage{Type: "pitch", Venue: venue}

	text, err := s.pitchFor(c.Request.Context(), venue)
	if err != nil {
		s.logger.Error("Sales pitch failed", zap.String("venue", venue), zap.Error(err))
		msg.Type = "error"
		msg.Error = err.Error()
	} else {
		msg.Text = text
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("Websocket write failed", zap.String("venue", venue), zap.Error(err))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (s *Server) pitchFor(ctx context.Context, venue string) (string, error) {
	matches, err := s.load()
	if err != nil {
		return "", err
	}
	products, ok := matches[venue]
	if !ok {
		return "", errUnknownVenue
	}

	ctx, cancel := context.WithTimeout(ctx, pitchTimeout)
	defer cancel()
	return GeneratePitch(ctx, s.llm, s.prompts, venue, products)
}

// GeneratePitch asks the model for a short sales pitch of products to venue.
func GeneratePitch(ctx context.Context, completer llm.Completer, prompts *prompt.PromptBuilder, venue string, products []string) (string, error) {
	pr, err := prompts.BuildPitch(venue, products)
	if err != nil {
		return "", err
	}
	return completer.Complete(ctx, llm.FromPrompt(pr), llm.WithPreset(llm.PresetCreative))
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
