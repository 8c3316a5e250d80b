// Package api exposes a sweep runner over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/hb9tf/vnasweep/actuator"
	"github.com/hb9tf/vnasweep/metrics"
	"github.com/hb9tf/vnasweep/sweep"
	"github.com/hb9tf/vnasweep/vna"
)

const prefix = "/vnasweep/v1"

type API struct {
	Runner *sweep.Runner
	Events *sweep.Recorder
	// Range limits the states a run may contain.
	Range actuator.Range
	// Window and Delay are used when a request leaves them out.
	Window *vna.Window
	Delay  time.Duration
}

// RunRequest starts a sweep. Count, if States is empty, sweeps Count
// consecutive states from the bottom of the device range.
type RunRequest struct {
	States []int          `json:"states"`
	Count  int            `json:"count"`
	Window *vna.Window    `json:"window"`
	Delay  sweep.Duration `json:"delay"`
	Dir    string         `json:"dir"`
}

type SnapshotRequest struct {
	Window *vna.Window `json:"window"`
	Dir    string      `json:"dir" binding:"required"`
}

type controlResponse struct {
	Changed bool         `json:"changed"`
	Status  sweep.Status `json:"status"`
}

func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), observe)

	v1 := r.Group(prefix)
	v1.POST("/runs", a.startRun)
	v1.POST("/pause", a.control(a.Runner.Pause))
	v1.POST("/resume", a.control(a.Runner.Resume))
	v1.POST("/cancel", a.control(a.Runner.Cancel))
	v1.GET("/status", a.status)
	v1.GET("/events", a.events)
	v1.POST("/snapshot", a.snapshot)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

func observe(c *gin.Context) {
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	metrics.ObserveRequest(path, c.Request.Method, c.Writer.Status())
}

// statusCode maps a start or snapshot error onto an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, sweep.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, sweep.ErrInvalidJob),
		errors.Is(err, vna.ErrWindowOutOfRange),
		errors.Is(err, actuator.ErrStateOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, vna.ErrNotConnected), errors.Is(err, actuator.ErrNotConnected):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (a *API) startRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job := sweep.Job{
		States: req.States,
		Delay:  req.Delay,
		Dir:    req.Dir,
	}
	if len(job.States) == 0 && req.Count > 0 {
		states, err := a.Range.Seq(req.Count)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		job.States = states
	}
	if err := a.Range.Check(job.States); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch {
	case req.Window != nil:
		job.Window = *req.Window
	case a.Window != nil:
		job.Window = *a.Window
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "window is required"})
		return
	}
	if job.Delay == 0 {
		job.Delay = sweep.Duration(a.Delay)
	}

	if err := a.Runner.Start(c.Request.Context(), job); err != nil {
		glog.Warningf("rejected sweep: %s", err)
		c.JSON(statusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, a.Runner.Status())
}

func (a *API) control(fn func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		changed := fn()
		c.JSON(http.StatusOK, controlResponse{Changed: changed, Status: a.Runner.Status()})
	}
}

func (a *API) status(c *gin.Context) {
	c.JSON(http.StatusOK, a.Runner.Status())
}

func (a *API) events(c *gin.Context) {
	if a.Events == nil {
		c.JSON(http.StatusOK, []sweep.Event{})
		return
	}
	events := a.Events.Events()
	if events == nil {
		events = []sweep.Event{}
	}
	c.JSON(http.StatusOK, events)
}

func (a *API) snapshot(c *gin.Context) {
	var req SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w := req.Window
	if w == nil {
		w = a.Window
	}
	files, err := a.Runner.Snapshot(c.Request.Context(), w, req.Dir)
	if err != nil {
		c.JSON(statusCode(err), gin.H{"error": err.Error(), "files": files})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}
