package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/kb/internal/core/domain"
)

type conversationResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type messageResponse struct {
	Seq       int64           `json:"seq"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   []domain.Source `json:"sources,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toConversationResponse(c *domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// listConversations handles GET /api/v1/conversations.
func (s *Server) listConversations(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	convs, err := s.ports.Conversation.List(c.Request.Context(), domain.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]conversationResponse, len(convs))
	for i := range convs {
		data[i] = toConversationResponse(&convs[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"pagination": gin.H{
			"limit":  limit,
			"offset": offset,
			"count":  len(data),
		},
	})
}

// getConversation handles GET /api/v1/conversations/:id.
func (s *Server) getConversation(c *gin.Context) {
	conv, msgs, err := s.ports.Conversation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	messages := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		messages[i] = messageResponse{
			Seq:       m.Seq,
			Role:      string(m.Role),
			Content:   m.Content,
			Sources:   m.Sources,
			CreatedAt: m.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": toConversationResponse(conv),
		"messages":     messages,
	})
}

// deleteConversation handles DELETE /api/v1/conversations/:id.
func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.ports.Conversation.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
