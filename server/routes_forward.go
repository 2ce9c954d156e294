// routes_forward.go - Handler fuer Sessions, Forward-Pass und Sichten
// Enthaelt: CreateSessionHandler, DeleteSessionHandler, ForwardHandler,
// ViewHandler, DistributionHandler, ProjectHandler

package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/model"
	"github.com/neivs/llmsandbox/runner"
)

// CreateSessionHandler startet eine Session mit eigenem Worker
func (s *Server) CreateSessionHandler(c *gin.Context) {
	var req api.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.StatusError{ErrorMessage: err.Error(), Kind: api.KindInvalidRequest})
		return
	}

	ref, err := s.sessions.Create(req.KeepAlive)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ref.refMu.Lock()
	resp := api.SessionResponse{ID: ref.id, ExpiresAt: ref.expiresAt}
	ref.refMu.Unlock()

	c.JSON(http.StatusOK, resp)
}

// DeleteSessionHandler baut eine Session ab und bricht ihren laufenden Pass ab
func (s *Server) DeleteSessionHandler(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// ForwardHandler fuehrt einen Forward-Pass im Worker der Session aus.
// Ohne :id wird die geteilte Default-Session benutzt.
func (s *Server) ForwardHandler(c *gin.Context) {
	var req api.ForwardRequest
	if !bindJSON(c, &req) {
		return
	}

	id := c.Param("id")
	if id == "" {
		id = defaultSessionID
	}

	ref, err := s.sessions.acquire(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer s.sessions.release(ref)

	resp, err := ref.worker.Run(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ViewHandler leitet eine andere Layer/Head-Sicht aus bestehenden Artefakten ab.
// Verteilung und Projektion werden parallel berechnet.
func (s *Server) ViewHandler(c *gin.Context) {
	var req api.ViewRequest
	if !bindJSON(c, &req) {
		return
	}

	artifacts := model.Artifacts{AttnByLayerHead: req.Artifacts.AttnByLayerHead}
	attention, err := artifacts.View(req.LayerView, req.HeadView)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := api.ViewResponse{
		Attention: attention,
		Stats:     api.AttentionStats(model.AttentionStats(attention)),
	}

	var g errgroup.Group
	g.Go(func() error {
		dist, err := runner.DeriveDistribution(&api.DistributionRequest{
			Logits:      req.Artifacts.LastLogits,
			Temperature: req.Temperature,
			TopK:        req.TopK,
			Renormalize: req.Renormalize,
		})
		if err != nil {
			return err
		}
		resp.Distribution = dist.Candidates
		return nil
	})
	g.Go(func() error {
		proj, err := runner.DeriveProjection(&api.ProjectRequest{Vectors: req.Artifacts.Embeddings})
		if err != nil {
			return err
		}
		resp.Projection = proj.Points
		return nil
	})

	if err := g.Wait(); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DistributionHandler wendet Temperatur und Top-K auf Logits an
func (s *Server) DistributionHandler(c *gin.Context) {
	var req api.DistributionRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := runner.DeriveDistribution(&req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ProjectHandler projiziert Vektoren auf zwei Dimensionen
func (s *Server) ProjectHandler(c *gin.Context) {
	var req api.ProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := runner.DeriveProjection(&req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
