package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chainsight/core/internal/cascade"
	"github.com/chainsight/core/internal/encode"
	"github.com/chainsight/core/internal/graph"
	"github.com/chainsight/core/internal/intel"
	"github.com/chainsight/core/internal/render"
	"github.com/chainsight/core/internal/session"
	"github.com/chainsight/core/internal/validation"
	"github.com/chainsight/core/internal/view"
)

// sourceOf maps a result's provenance to the wire marker. "demo" is the
// canonical synthetic flag clients key banners off.
func sourceOf(r *cascade.Result) string {
	if r.Provenance == intel.ProvenanceSynthetic {
		return "demo"
	}
	return "live"
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"error":   code,
		"message": message,
	})
}

func sessionError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	errorJSON(c, http.StatusBadRequest, "bad_request", err.Error())
}

// depthParam reads ?depth=N, clamped to [1, MAX_GRAPH_DEPTH].
func (s *Server) depthParam(c *gin.Context) int {
	depth := DefaultSubgraphDepth
	if raw := c.Query("depth"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			depth = n
		}
	}
	if depth < 1 {
		depth = 1
	}
	if depth > s.cfg.MaxGraphDepth {
		depth = s.cfg.MaxGraphDepth
	}
	return depth
}

// -----------------------------------------------------------------------------
// Investigation
// -----------------------------------------------------------------------------

func (s *Server) investigateHandler(c *gin.Context) {
	address := validation.NormalizeAddress(c.Param("address"))
	depth := s.depthParam(c)

	// ?session= re-targets an existing session: the previous query is
	// cancelled and its late results discarded.
	var sess *session.Session
	if id := c.Query("session"); id != "" {
		var err error
		if sess, err = s.sessions.Requery(c.Request.Context(), id, address, depth); err != nil {
			sessionError(c, err)
			return
		}
	} else {
		sess = s.sessions.Investigate(c.Request.Context(), address, depth)
	}

	doc, err := s.sessions.Document(sess.ID)
	if err != nil {
		sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"session_id": sess.ID,
			"address":    address,
			"depth":      depth,
			"document":   doc,
		},
	})
}

// capabilityHandler serves a single capability through the cascade. It
// never fails: total upstream loss returns synthesized data marked
// meta.source == "demo".
func (s *Server) capabilityHandler(cap intel.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := validation.NormalizeAddress(c.Param("address"))

		res := s.cascade.Fetch(c.Request.Context(), cap, address)

		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   res.Data,
			"meta": gin.H{
				"source":   sourceOf(res),
				"attempts": res.Attempts,
			},
		})
	}
}

// -----------------------------------------------------------------------------
// Graph
// -----------------------------------------------------------------------------

func (s *Server) subgraphHandler(c *gin.Context) {
	address := validation.NormalizeAddress(c.Param("address"))
	depth := s.depthParam(c)

	res := s.cascade.FetchSubgraph(c.Request.Context(), address, depth)
	g := graph.Normalize(res.Data, address)
	encode.Apply(g)
	name := s.layoutEng.Arrange(c.Request.Context(), g)

	doc := render.Build(address, g, name, "", []cascade.Result{*res})

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   doc,
		"meta": gin.H{
			"source": sourceOf(res),
			"depth":  depth,
		},
	})
}

type expandRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (s *Server) expandHandler(c *gin.Context) {
	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	node := validation.NormalizeAddress(c.Param("address"))
	doc, err := s.sessions.Expand(c.Request.Context(), req.SessionID, node)
	if err != nil {
		sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": doc})
}

// -----------------------------------------------------------------------------
// Session interaction
// -----------------------------------------------------------------------------

func (s *Server) sessionDocumentHandler(c *gin.Context) {
	doc, err := s.sessions.Document(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": doc})
}

type selectRequest struct {
	NodeID string `json:"node_id"` // empty deselects
}

func (s *Server) selectHandler(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	doc, err := s.sessions.Select(c.Param("id"), req.NodeID)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": doc})
}

func (s *Server) filterHandler(c *gin.Context) {
	var f view.Filter
	if err := c.ShouldBindJSON(&f); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	doc, err := s.sessions.Filter(c.Param("id"), f)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": doc})
}

func (s *Server) clearHandler(c *gin.Context) {
	doc, err := s.sessions.ClearOverlays(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": doc})
}

func (s *Server) retryHandler(c *gin.Context) {
	cap := intel.Capability(c.Param("capability"))
	if !cap.Valid() {
		errorJSON(c, http.StatusBadRequest, "unknown_capability", "capability must be one of wallet-risk, classification, multichain, social, subgraph")
		return
	}

	sess, err := s.sessions.Retry(c.Request.Context(), c.Param("id"), cap)
	if err != nil {
		sessionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "success",
		"data": gin.H{
			"session_id": sess.ID,
			"capability": cap,
		},
	})
}

func (s *Server) closeSessionHandler(c *gin.Context) {
	s.sessions.Close(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
