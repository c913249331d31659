package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// documentResponse is the JSON form of a document.
type documentResponse struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Filename   string         `json:"filename"`
	Type       string         `json:"type"`
	Size       int64          `json:"size"`
	Permission string         `json:"permission"`
	Status     string         `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	IndexedAt  *time.Time     `json:"indexed_at,omitempty"`
}

func toDocumentResponse(doc *domain.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID,
		Title:      doc.Title,
		Filename:   doc.Filename,
		Type:       doc.SourceType.String(),
		Size:       doc.Size,
		Permission: doc.Permission.String(),
		Status:     doc.Status.String(),
		ChunkCount: doc.ChunkCount,
		Error:      doc.Error,
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		IndexedAt:  doc.IndexedAt,
	}
}

// chunkResponse is the JSON form of a chunk without its embedding.
type chunkResponse struct {
	ID         string `json:"id"`
	Position   int    `json:"position"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Permission string `json:"permission"`
	Content    string `json:"content"`
}

// uploadForm is the multipart upload body besides the file itself.
type uploadForm struct {
	Title      string `form:"title" binding:"max=512"`
	Permission string `form:"permission" binding:"omitempty,permission"`
	Type       string `form:"type" binding:"omitempty,oneof=pdf docx txt md html"`
}

// permissionRequest is the body of PUT /documents/:id/permission.
type permissionRequest struct {
	Permission string `json:"permission" binding:"required,permission"`
}

// uploadDocument handles POST /api/v1/documents.
func (s *Server) uploadDocument(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, err.Error())
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, fmt.Sprintf("reading upload: %v", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, fmt.Sprintf("reading upload: %v", err))
		return
	}

	doc, err := s.ports.Ingestion.Upload(c.Request.Context(), driving.UploadRequest{
		Filename:   fh.Filename,
		Content:    content,
		Title:      form.Title,
		SourceType: domain.SourceType(form.Type),
		Permission: domain.PermissionLevel(form.Permission),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toDocumentResponse(doc))
}

// listDocuments handles GET /api/v1/documents.
func (s *Server) listDocuments(c *gin.Context) {
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

	filter := domain.DocumentFilter{
		Status:     domain.DocumentStatus(c.Query("status")),
		SourceType: domain.SourceType(c.Query("type")),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		badRequest(c, "unknown status "+strconv.Quote(c.Query("status")))
		return
	}
	if filter.SourceType != "" && !filter.SourceType.IsValid() {
		badRequest(c, "unknown type "+strconv.Quote(c.Query("type")))
		return
	}

	docs, err := s.ports.Document.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]documentResponse, len(docs))
	for i := range docs {
		data[i] = toDocumentResponse(&docs[i])
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

// getDocument handles GET /api/v1/documents/:id.
func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.ports.Document.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// getDocumentContent handles GET /api/v1/documents/:id/content.
func (s *Server) getDocumentContent(c *gin.Context) {
	content, err := s.ports.Document.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, content)
}

// getDocumentChunks handles GET /api/v1/documents/:id/chunks.
func (s *Server) getDocumentChunks(c *gin.Context) {
	chunks, err := s.ports.Document.GetChunks(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]chunkResponse, len(chunks))
	for i, ch := range chunks {
		data[i] = chunkResponse{
			ID:         ch.ID,
			Position:   ch.Position,
			Start:      ch.Start,
			End:        ch.End,
			Permission: ch.Permission.String(),
			Content:    ch.Content,
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// deleteDocument handles DELETE /api/v1/documents/:id.
func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.ports.Document.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// retryDocument handles POST /api/v1/documents/:id/retry.
func (s *Server) retryDocument(c *gin.Context) {
	doc, err := s.ports.Ingestion.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toDocumentResponse(doc))
}

// changePermission handles PUT /api/v1/documents/:id/permission.
func (s *Server) changePermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	doc, err := s.ports.Document.ChangePermission(c.Request.Context(), c.Param("id"), domain.PermissionLevel(req.Permission))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// stats handles GET /api/v1/stats.
func (s *Server) stats(c *gin.Context) {
	stats, err := s.ports.Document.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
