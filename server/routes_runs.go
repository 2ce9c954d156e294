// routes_runs.go - Export und Run-Historie
// Enthaelt: ExportHandler, ListRunsHandler, GetRunHandler, DeleteRunHandler

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/export"
)

var errHistoryDisabled = errors.New("run history is disabled (SANDBOX_NOHISTORY)")

// ExportHandler baut das gerundete Export-Dokument und speichert es optional
func (s *Server) ExportHandler(c *gin.Context) {
	var req api.ExportRequest
	if !bindJSON(c, &req) {
		return
	}

	doc, err := export.New(&req.Request, &req.Artifacts, time.Now())
	if err != nil {
		abortWithError(c, err)
		return
	}

	if req.Save {
		if s.history == nil {
			abortWithError(c, errHistoryDisabled)
			return
		}

		if err := s.history.Save(doc); err != nil {
			abortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, doc)
}

// ListRunsHandler listet gespeicherte Runs, die neuesten zuerst
func (s *Server) ListRunsHandler(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, api.ListRunsResponse{Runs: []api.RunSummary{}})
		return
	}

	runs, err := s.history.List(c.Query("prefix"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ListRunsResponse{Runs: runs})
}

// GetRunHandler liefert einen gespeicherten Run ueber Id oder eindeutiges Praefix
func (s *Server) GetRunHandler(c *gin.Context) {
	if s.history == nil {
		abortWithError(c, errHistoryDisabled)
		return
	}

	doc, err := s.history.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// DeleteRunHandler entfernt einen gespeicherten Run ueber Id oder eindeutiges Praefix
func (s *Server) DeleteRunHandler(c *gin.Context) {
	if s.history == nil {
		abortWithError(c, errHistoryDisabled)
		return
	}

	doc, err := s.history.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := s.history.Delete(doc.ID); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
