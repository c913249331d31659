package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// chatRequest is the body of POST /api/v1/chat.
type chatRequest struct {
	Query          string   `json:"query" binding:"required,max=4000"`
	ConversationID string   `json:"conversation_id" binding:"omitempty,max=128"`
	TopK           int      `json:"top_k" binding:"gte=0,lte=100"`
	ScoreThreshold *float64 `json:"score_threshold" binding:"omitempty,gte=-1,lte=2"`
	UseRerank      bool     `json:"use_rerank"`
	Scope          []string `json:"scope" binding:"dive,permission"`
}

// searchRequest is the body of POST /api/v1/search.
type searchRequest struct {
	Query          string   `json:"query" binding:"required,max=4000"`
	TopK           int      `json:"top_k" binding:"gte=0,lte=100"`
	ScoreThreshold float64  `json:"score_threshold" binding:"gte=-1,lte=2"`
	UseRerank      bool     `json:"use_rerank"`
	Scope          []string `json:"scope" binding:"dive,permission"`
	DocumentIDs    []string `json:"document_ids"`
}

// chat handles POST /api/v1/chat.
// An empty scope is passed through and rejected by the query service.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := s.ports.Query.Ask(c.Request.Context(), driving.AskRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		UseRerank:      req.UseRerank,
		Scope:          scope,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if resp.Sources == nil {
		resp.Sources = []domain.Source{}
	}
	if resp.Citations == nil {
		resp.Citations = []int{}
	}
	c.JSON(http.StatusOK, resp)
}

// search handles POST /api/v1/search.
func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		writeError(c, err)
		return
	}

	sources, err := s.ports.Query.Search(c.Request.Context(), req.Query, domain.RetrieveOptions{
		Scope:          scope,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		UseRerank:      req.UseRerank,
		DocumentIDs:    req.DocumentIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if sources == nil {
		sources = []domain.Source{}
	}
	c.JSON(http.StatusOK, gin.H{"data": sources})
}
