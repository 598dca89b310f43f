package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Lllllllleong/documentreviewflow/internal/archive"
	"github.com/Lllllllleong/documentreviewflow/internal/audio"
	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
	"github.com/Lllllllleong/documentreviewflow/internal/ingest"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/pipeline"
	"github.com/Lllllllleong/documentreviewflow/internal/services"
)

const sessionKey = "session"

type API struct {
	review *services.ReviewService
}

func NewAPI(review *services.ReviewService) *API {
	return &API{review: review}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)
		apiGroup.POST("/sessions", api.handleCreateSession)

		s := apiGroup.Group("/sessions/:id", api.loadSession)
		s.GET("", api.handleGetSession)
		s.DELETE("", api.handleDeleteSession)
		s.GET("/messages", api.handleMessages)

		s.POST("/extract", api.handleExtract)
		s.POST("/summarize", api.handleSummarize)
		s.POST("/populate", api.handlePopulate)
		s.POST("/generate", api.handleGenerate)
		s.POST("/critique", api.handleCritique)
		s.POST("/save", api.handleSave)
		s.POST("/speak", api.handleSpeak)

		s.PUT("/draft", api.handleSetDraft)
		s.GET("/references", api.handleListReferences)
		s.POST("/references", api.handleAddReference)
		s.POST("/references/:refId/select", api.handleSelectReference)
		s.DELETE("/references/:refId", api.handleDeleteReference)

		s.GET("/archive", api.handleListArchive)
		s.GET("/archive/:docId", api.handleGetArchived)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleCreateSession(c *gin.Context) {
	session, err := a.review.CreateSession()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, models.SessionResponse{SessionID: session.ID()})
}

func (a *API) loadSession(c *gin.Context) {
	session, err := a.review.Session(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "session not found")
		c.Abort()
		return
	}
	c.Set(sessionKey, session)
	c.Next()
}

func sessionFrom(c *gin.Context) *pipeline.Session {
	return c.MustGet(sessionKey).(*pipeline.Session)
}

func (a *API) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionFrom(c).Snapshot())
}

func (a *API) handleDeleteSession(c *gin.Context) {
	if err := a.review.DeleteSession(sessionFrom(c).ID()); err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleMessages(c *gin.Context) {
	msgs := a.review.Messages(sessionFrom(c).ID())
	if msgs == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (a *API) handleExtract(c *gin.Context) {
	var payload models.ExtractRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()
	text := payload.Text
	if payload.SourceURI != "" {
		if !strings.HasPrefix(payload.SourceURI, "gs://") {
			respondMessage(c, http.StatusBadRequest, "sourceUri must be a gs:// URI")
			return
		}
		loaded, err := a.review.Load(ctx, payload.SourceURI)
		if err != nil {
			respondError(c, statusFor(err), err)
			return
		}
		text = loaded
	}

	session := sessionFrom(c)
	doc, err := session.Extract(ctx, text)
	a.respondStage(c, session, pipeline.StageExtract, doc, err)
}

func (a *API) handleSummarize(c *gin.Context) {
	session := sessionFrom(c)
	summary, err := session.Summarize(c.Request.Context())
	a.respondStage(c, session, pipeline.StageSummarize, gin.H{"summary": summary}, err)
}

func (a *API) handlePopulate(c *gin.Context) {
	var payload models.PopulateRequest
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	session := sessionFrom(c)
	if payload.Summary != "" {
		draft := session.Draft()
		draft.Summary = payload.Summary
		session.SetDraft(draft)
	}
	draft, err := session.Populate(c.Request.Context())
	a.respondStage(c, session, pipeline.StagePopulate, draft, err)
}

func (a *API) handleGenerate(c *gin.Context) {
	session := sessionFrom(c)
	output, err := session.Generate(c.Request.Context())
	kind := session.Snapshot().State.OutputKind
	a.respondStage(c, session, pipeline.StageGenerate, gin.H{"output": output, "outputKind": kind}, err)
}

func (a *API) handleCritique(c *gin.Context) {
	session := sessionFrom(c)
	critique, err := session.Critique(c.Request.Context())
	a.respondStage(c, session, pipeline.StageCritique, gin.H{"critique": critique}, err)
}

func (a *API) handleSave(c *gin.Context) {
	session := sessionFrom(c)
	doc, err := session.Save(c.Request.Context())
	a.respondStage(c, session, pipeline.StageSave, doc, err)
}

func (a *API) handleSpeak(c *gin.Context) {
	session := sessionFrom(c)
	speech, err := session.Speak(c.Request.Context())
	if err != nil {
		a.respondStage(c, session, pipeline.StageSpeak, nil, err)
		return
	}
	clip, err := audio.Decode(speech.Data, speech.MIMEType)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	c.Data(http.StatusOK, "audio/wav", clip.WAV)
}

func (a *API) handleSetDraft(c *gin.Context) {
	var draft models.ReferenceDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	session := sessionFrom(c)
	session.SetDraft(draft)
	c.JSON(http.StatusOK, session.Draft())
}

func (a *API) handleListReferences(c *gin.Context) {
	c.JSON(http.StatusOK, a.review.Library().List())
}

func (a *API) handleAddReference(c *gin.Context) {
	session := sessionFrom(c)
	if c.Request.ContentLength > 0 {
		var draft models.ReferenceDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
		session.SetDraft(draft)
	}
	ref, err := session.AddReference(c.Request.Context())
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (a *API) handleSelectReference(c *gin.Context) {
	ref, err := sessionFrom(c).SelectReference(c.Request.Context(), c.Param("refId"))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (a *API) handleDeleteReference(c *gin.Context) {
	if err := sessionFrom(c).DeleteReference(c.Request.Context(), c.Param("refId")); err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListArchive(c *gin.Context) {
	docs, err := a.review.Archive().List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if docs == nil {
		docs = []models.SavedDocument{}
	}
	c.JSON(http.StatusOK, docs)
}

func (a *API) handleGetArchived(c *gin.Context) {
	doc, err := a.review.Archive().Get(c.Request.Context(), c.Param("docId"))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// respondStage writes the stage outcome together with its last message.
func (a *API) respondStage(c *gin.Context, session *pipeline.Session, stage pipeline.Stage, result any, err error) {
	resp := models.StageResponse{
		Stage:  string(stage),
		Status: string(session.Status(stage)),
	}
	if msg, ok := a.review.LastMessage(session.ID(), string(stage)); ok {
		resp.Message = msg.Text
	}
	if err != nil {
		slog.Warn("Stage request failed.", "sessionId", session.ID(), "stage", stage, "error", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "stage": resp})
		return
	}
	resp.Result = result
	c.JSON(http.StatusOK, resp)
}

// statusFor maps domain errors to HTTP status codes. Anything unclassified
// came from the generation service.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrPrecondition),
		errors.Is(err, pipeline.ErrStageBusy),
		errors.Is(err, pipeline.ErrStale):
		return http.StatusConflict
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, pipeline.ErrReferenceNotFound),
		errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrUnsupportedSource),
		errors.Is(err, ingest.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusBadGateway
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
