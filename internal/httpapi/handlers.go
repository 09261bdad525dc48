package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pdrpinto/gridpath"
)

const (
	statusPending  = "pending"
	statusFound    = "found"
	statusNotFound = "not_found"
	statusError    = "error"

	contentTypeMsgpack = "application/msgpack"
)

type pathRequestBody struct {
	Start  *gridpath.Vec3 `json:"start" binding:"required"`
	Target *gridpath.Vec3 `json:"target" binding:"required"`
	// Wait holds the response until the search has finished.
	Wait bool `json:"wait"`
}

type pathResponse struct {
	ID            string             `json:"id" msgpack:"id"`
	Status        string             `json:"status" msgpack:"status"`
	GridVersion   uint64             `json:"grid_version" msgpack:"grid_version"`
	Waypoints     []gridpath.Vec3    `json:"waypoints,omitempty" msgpack:"waypoints,omitempty"`
	Cells         []gridpath.NodeRef `json:"cells,omitempty" msgpack:"cells,omitempty"`
	TotalCost     int                `json:"total_cost" msgpack:"total_cost"`
	ExpandedNodes int                `json:"expanded_nodes" msgpack:"expanded_nodes"`
	Truncated     bool               `json:"truncated,omitempty" msgpack:"truncated,omitempty"`
	DurationMs    float64            `json:"duration_ms" msgpack:"duration_ms"`
	Error         string             `json:"error,omitempty" msgpack:"error,omitempty"`
}

func newPathResponse(id string, request *gridpath.PathRequest, result gridpath.Result, err error) pathResponse {
	response := pathResponse{
		ID:            id,
		GridVersion:   request.GridVersion,
		Waypoints:     result.Waypoints,
		Cells:         result.Cells,
		TotalCost:     result.TotalCost,
		ExpandedNodes: result.ExpandedNodes,
		Truncated:     result.Truncated,
		DurationMs:    float64(result.Duration.Microseconds()) / 1000.0,
	}
	switch {
	case err != nil:
		response.Status = statusError
		response.Error = err.Error()
	case result.Found:
		response.Status = statusFound
	default:
		response.Status = statusNotFound
	}
	return response
}

func (s *Server) createPath(c *gin.Context) {
	var body pathRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "start and target positions are required"})
		return
	}

	request := s.service.RequestPath(c.Request.Context(), *body.Start, *body.Target)
	if !body.Wait {
		s.requests.add(request)
		c.JSON(http.StatusAccepted, gin.H{"id": request.ID.String(), "status": statusPending})
		return
	}

	result, err := request.Wait(c.Request.Context())
	if err != nil && errors.Is(err, c.Request.Context().Err()) {
		// the client went away; keep the result pollable
		s.requests.add(request)
		return
	}
	c.JSON(statusFor(err), newPathResponse(request.ID.String(), request, result, err))
}

func (s *Server) getPath(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	request, ok := s.requests.get(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown or expired request id"})
		return
	}
	result, err, done := request.Poll()
	if !done {
		c.JSON(http.StatusOK, pathResponse{ID: id.String(), Status: statusPending, GridVersion: request.GridVersion})
		return
	}
	c.JSON(http.StatusOK, newPathResponse(id.String(), request, result, err))
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, gridpath.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type snapBody struct {
	Position *gridpath.Vec3 `json:"position" binding:"required"`
}

func (s *Server) snap(c *gin.Context) {
	var body snapBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "position is required"})
		return
	}
	node := s.service.Grid().WorldToNode(*body.Position)
	c.JSON(http.StatusOK, gin.H{
		"position": node.World,
		"cell":     node.Ref(),
		"walkable": node.Walkable,
	})
}

type gridSummary struct {
	Version          uint64                    `json:"version"`
	Width            int                       `json:"width"`
	Height           int                       `json:"height"`
	Origin           gridpath.Vec3             `json:"origin"`
	WorldSize        gridpath.Size             `json:"world_size"`
	CellRadius       float64                   `json:"cell_radius"`
	SkinMargin       float64                   `json:"skin_margin"`
	Walkable         int                       `json:"walkable"`
	TerrainPenalties []gridpath.TerrainPenalty `json:"terrain_penalties,omitempty"`
}

func summarize(grid *gridpath.Grid, version uint64) gridSummary {
	return gridSummary{
		Version:          version,
		Width:            grid.Width(),
		Height:           grid.Height(),
		Origin:           grid.Origin(),
		WorldSize:        grid.WorldSize(),
		CellRadius:       grid.CellRadius(),
		SkinMargin:       grid.SkinMargin(),
		Walkable:         grid.WalkableCount(),
		TerrainPenalties: grid.Terrain().Entries(),
	}
}

func (s *Server) describeGrid(c *gin.Context) {
	c.JSON(http.StatusOK, summarize(s.service.Grid(), s.service.GridVersion()))
}

type nodeEntry struct {
	Position gridpath.Vec3 `json:"position" msgpack:"position"`
	Walkable bool          `json:"walkable" msgpack:"walkable"`
	Penalty  int           `json:"penalty" msgpack:"penalty"`
}

type nodeDump struct {
	Version uint64      `json:"version" msgpack:"version"`
	Width   int         `json:"width" msgpack:"width"`
	Height  int         `json:"height" msgpack:"height"`
	Nodes   []nodeEntry `json:"nodes" msgpack:"nodes"`
}

// gridNodes dumps every node in id order. The body is msgpack when the client
// accepts it and brotli-compressed when the client accepts br.
func (s *Server) gridNodes(c *gin.Context) {
	version := s.service.GridVersion()
	grid := s.service.Grid()
	dump := nodeDump{
		Version: version,
		Width:   grid.Width(),
		Height:  grid.Height(),
		Nodes:   make([]nodeEntry, 0, grid.MaxSize()),
	}
	for node := range grid.Nodes() {
		dump.Nodes = append(dump.Nodes, nodeEntry{Position: node.World, Walkable: node.Walkable, Penalty: node.Penalty})
	}

	contentType := "application/json"
	var data []byte
	var err error
	if strings.Contains(c.GetHeader("Accept"), contentTypeMsgpack) {
		contentType = contentTypeMsgpack
		data, err = msgpack.Marshal(&dump)
	} else {
		data, err = json.Marshal(&dump)
	}
	if err != nil {
		s.logger.Error("grid_dump_failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to encode grid"})
		return
	}

	c.Header("Vary", "Accept, Accept-Encoding")
	if strings.Contains(c.GetHeader("Accept-Encoding"), "br") {
		var compressed bytes.Buffer
		writer := brotli.NewWriterLevel(&compressed, brotli.DefaultCompression)
		if _, err := writer.Write(data); err == nil {
			err = writer.Close()
		}
		if err != nil {
			s.logger.Error("grid_dump_failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to compress grid"})
			return
		}
		c.Header("Content-Encoding", "br")
		data = compressed.Bytes()
	}
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) regenerate(c *gin.Context) {
	if s.reloader == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "no configuration source to regenerate from"})
		return
	}
	grid, version, err := s.reloader.Reload(c.Request.Context())
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, gridpath.ErrServiceClosed) {
			status = http.StatusServiceUnavailable
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summarize(grid, version))
}
