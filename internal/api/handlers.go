package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"filesmanager/internal/auth"
	"filesmanager/internal/common"
	"filesmanager/internal/models"
	"filesmanager/internal/service/files"
	"filesmanager/internal/service/users"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a storage dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Handler wires HTTP routes to the credential, session and file services.
type Handler struct {
	users *users.Service
	files *files.Service
	auth  *auth.Service
	redis Pinger
	db    Pinger
}

// NewHandler constructs a Handler instance.
func NewHandler(usersSvc *users.Service, filesSvc *files.Service, authService *auth.Service, redisPing, dbPing Pinger) *Handler {
	return &Handler{
		users: usersSvc,
		files: filesSvc,
		auth:  authService,
		redis: redisPing,
		db:    dbPing,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/status", h.getStatus)
	router.GET("/stats", h.getStats)
	router.POST("/users", h.registerUser)
	router.GET("/connect", h.connect)

	authMW := h.auth.Middleware()
	router.GET("/disconnect", authMW, h.disconnect)
	router.GET("/users/me", authMW, h.getMe)

	fileRoutes := router.Group("/files")
	fileRoutes.POST("", authMW, h.postUpload)
	fileRoutes.GET("", authMW, h.getIndex)
	fileRoutes.GET("/:id", authMW, h.getShow)
	fileRoutes.PUT("/:id/publish", authMW, h.putPublish)
	fileRoutes.PUT("/:id/unpublish", authMW, h.putUnpublish)
	fileRoutes.GET("/:id/data", h.auth.OptionalMiddleware(), h.getFile)
}

// respondError maps the error taxonomy onto status codes and client messages.
func respondError(c *gin.Context, err error) {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
	case errors.Is(err, common.ErrConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ErrConflict.Error()})
	case errors.Is(err, common.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": common.ErrUnauthorized.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": common.ErrNotFound.Error()})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": common.ErrUnauthorized.Error()})
		return "", false
	}
	return userID, true
}

func (h *Handler) getStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{
		"redis": alive(ctx, h.redis),
		"db":    alive(ctx, h.db),
	})
}

func alive(ctx context.Context, p Pinger) bool {
	return p != nil && p.Ping(ctx) == nil
}

func (h *Handler) getStats(c *gin.Context) {
	ctx := c.Request.Context()
	userCount, err := h.users.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	fileCount, err := h.files.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users": userCount,
		"files": fileCount,
	})
}

// User create&login interface
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (h *Handler) connect(c *gin.Context) {
	email, password, ok := c.Request.BasicAuth()
	if !ok {
		respondError(c, common.ErrUnauthorized)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) disconnect(c *gin.Context) {
	token, ok := auth.AuthTokenFromContext(c)
	if !ok {
		respondError(c, common.ErrUnauthorized)
		return
	}
	if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getMe(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// a live token for a vanished account is still not a session
			err = common.ErrUnauthorized
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    user.ID,
		"email": user.Email,
	})
}

// parentRef accepts a folder id as a JSON string or number; 0 is the root.
type parentRef string

func (p *parentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = parentRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parentId must be a string or a number")
	}
	*p = parentRef(n.String())
	return nil
}

type uploadRequest struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	ParentID parentRef `json:"parentId"`
	IsPublic bool      `json:"isPublic"`
	Data     string    `json:"data"`
}

func (h *Handler) postUpload(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req uploadRequest
	if !bindJSON(c, &req) {
		return
	}
	file, err := h.files.Upload(c.Request.Context(), userID, files.UploadRequest{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: string(req.ParentID),
		IsPublic: req.IsPublic,
		Data:     req.Data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

func (h *Handler) getShow(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	file, err := h.files.Show(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (h *Handler) getIndex(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	parentID := c.DefaultQuery("parentId", models.RootID)
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		page = 0
	}
	list, err := h.files.Index(c.Request.Context(), userID, parentID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) putPublish(c *gin.Context) {
	h.setPublic(c, true)
}

func (h *Handler) putUnpublish(c *gin.Context) {
	h.setPublic(c, false)
}

func (h *Handler) setPublic(c *gin.Context, isPublic bool) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	file, err := h.files.SetPublic(c.Request.Context(), userID, c.Param("id"), isPublic)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// getFile serves content to anyone for public records and to the owner
// otherwise; ?size= selects a thumbnail.
func (h *Handler) getFile(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	size := 0
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		// 0 means "no thumbnail" to the service, so it cannot be asked for
		if err != nil || parsed == 0 {
			respondError(c, files.ErrInvalidSize)
			return
		}
		size = parsed
	}
	content, err := h.files.GetContent(c.Request.Context(), userID, c.Param("id"), size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, content.MimeType, content.Data)
}

// bindJSON decodes the body into req. An empty body leaves req zeroed so the
// services report the first missing field.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}
