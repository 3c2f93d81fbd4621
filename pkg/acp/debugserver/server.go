// Package debugserver exposes a GET-only gin HTTP server for live
// introspection of an acpcore client process: sessions, tool calls, and
// pending permissions. It never mutates anything and never renders
// message content, only lifecycle metadata, so it is safe to expose on
// a loopback port even in a sensitive environment.
//
// Grounded on internal/agentctl/server/api/server.go's gin.New() +
// route-group setup and internal/agentctl/server/api/processes.go's
// GET-only handler shape.
package debugserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
	"github.com/brindlewood/acpcore/pkg/acp/session"
	"github.com/brindlewood/acpcore/pkg/acp/toolcall"
)

// Server is the read-only introspection HTTP server.
type Server struct {
	router    *gin.Engine
	sessions  *session.Registry
	toolCalls *toolcall.Registry
	log       *corelog.Logger
}

// New constructs a Server wired to the given registries. Either
// registry may be nil, in which case the routes depending on it report
// an empty result rather than panicking.
func New(sessions *session.Registry, toolCalls *toolcall.Registry, log *corelog.Logger) *Server {
	if log == nil {
		log = corelog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		sessions:  sessions,
		toolCalls: toolCalls,
		log:       log.WithComponent("debugserver"),
	}
	s.setupRoutes()
	return s
}

// Router returns the underlying http.Handler, for embedding in an
// existing net/http.Server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/sessions", s.handleListSessions)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.GET("/tool-calls", s.handleListToolCalls)
		v1.GET("/tool-calls/active", s.handleActiveToolCalls)
		v1.GET("/tool-calls/pending-permissions", s.handlePendingPermissions)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sessionView struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd"`
	Active    bool   `json:"active"`
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusOK, []sessionView{})
		return
	}
	active := s.sessions.ActiveSessionID()
	views := make([]sessionView, 0)
	for _, sess := range s.sessions.All() {
		views = append(views, sessionView{SessionID: sess.SessionID, Cwd: sess.Cwd, Active: sess.SessionID == active})
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	sess := s.sessions.Get(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionView{SessionID: sess.SessionID, Cwd: sess.Cwd, Active: sess.SessionID == s.sessions.ActiveSessionID()})
}

func (s *Server) handleListToolCalls(c *gin.Context) {
	if s.toolCalls == nil {
		c.JSON(http.StatusOK, []toolcall.Call{})
		return
	}
	c.JSON(http.StatusOK, s.toolCalls.GetAllCalls())
}

func (s *Server) handleActiveToolCalls(c *gin.Context) {
	if s.toolCalls == nil {
		c.JSON(http.StatusOK, []toolcall.Call{})
		return
	}
	c.JSON(http.StatusOK, s.toolCalls.GetActiveCalls())
}

func (s *Server) handlePendingPermissions(c *gin.Context) {
	if s.toolCalls == nil {
		c.JSON(http.StatusOK, []toolcall.Call{})
		return
	}
	c.JSON(http.StatusOK, s.toolCalls.GetPendingPermissions())
}
