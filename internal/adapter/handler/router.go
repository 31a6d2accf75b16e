package handler

import (
	"github.com/labstack/echo/v4"
)

// Router holds all handlers
type Router struct {
	auth          echo.MiddlewareFunc
	health        *Health
	voiceprint    *Voiceprint
	transcription *Transcription
	realtime      *Realtime
}

// NewRouter creates a new router with all handlers. auth guards every /v1
// route.
func NewRouter(auth echo.MiddlewareFunc, health *Health, voiceprint *Voiceprint, transcription *Transcription, realtime *Realtime) *Router {
	return &Router{
		auth:          auth,
		health:        health,
		voiceprint:    voiceprint,
		transcription: transcription,
		realtime:      realtime,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	e.GET("/health", rt.health.Check)

	v1 := e.Group("/v1")
	if rt.auth != nil {
		v1.Use(rt.auth)
	}

	rt.setupVoiceprintRoutes(v1)
	rt.setupTranscriptionRoutes(v1)
	rt.setupRealtimeRoutes(v1)
}

func (rt *Router) setupVoiceprintRoutes(g *echo.Group) {
	vp := g.Group("/voiceprints")
	vp.POST("", rt.voiceprint.Enroll)
	vp.GET("", rt.voiceprint.List)
	vp.POST("/recognize", rt.voiceprint.Recognize)
	vp.GET("/:id", rt.voiceprint.Get)
	vp.DELETE("/:id", rt.voiceprint.Delete)
	vp.POST("/:id/samples", rt.voiceprint.AddSamples)
}

func (rt *Router) setupTranscriptionRoutes(g *echo.Group) {
	g.POST("/transcriptions", rt.transcription.Transcribe)
}

func (rt *Router) setupRealtimeRoutes(g *echo.Group) {
	rtGroup := g.Group("/realtime")
	rtGroup.GET("/ws", rt.realtime.Stream)
	rtGroup.GET("/sessions/:id", rt.realtime.Session)
	rtGroup.GET("/meetings/:id/session", rt.realtime.MeetingSession)
}
