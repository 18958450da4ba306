package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/discovery"
	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/notify"
)

type Discoverer interface {
	Scan(ctx context.Context) ([]discovery.PrinterDevice, error)
	ListPaired(ctx context.Context) ([]discovery.PrinterDevice, error)
	Platform() string
}

type PresetStore interface {
	CreatePreset(ctx context.Context, p *db.PrinterPreset) error
	ListPresets(ctx context.Context) ([]*db.PrinterPreset, error)
	GetPreset(ctx context.Context, id int64) (*db.PrinterPreset, error)
	ActivatePreset(ctx context.Context, id int64) error
}

type CreatePresetRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type" binding:"omitempty,oneof=epson star"`
	Interface string `json:"interface" binding:"required"`
	Width     int    `json:"width" binding:"omitempty,min=1,max=255"`
	Active    bool   `json:"active"`
}

type DevicesResponse struct {
	Success  bool                      `json:"success"`
	Platform string                    `json:"platform"`
	Devices  []discovery.PrinterDevice `json:"devices"`
}

type PresetsResponse struct {
	Success bool                `json:"success"`
	Configs []*db.PrinterPreset `json:"configs"`
}

type PresetResponse struct {
	Success bool              `json:"success"`
	Config  *db.PrinterPreset `json:"config"`
}

const testReceipt = `[` +
	`{"type":"align","value":"center"},` +
	`{"type":"bold","value":true},` +
	`{"type":"text","content":"PRINTER TEST"},` +
	`{"type":"bold","value":false},` +
	`{"type":"text","content":"If you can read this, the printer is configured."},` +
	`{"type":"newline","value":2},` +
	`{"type":"cut"}]`

type PrinterHandler struct {
	discoverer Discoverer
	presets    PresetStore
	jobs       QueueStore
	notifier   Notifier
	logger     *zap.Logger

	// Concurrent scans share one run of the OS tool.
	group singleflight.Group
}

func NewPrinterHandler(discoverer Discoverer, presets PresetStore, jobs QueueStore, notifier Notifier, logger *zap.Logger) *PrinterHandler {
	return &PrinterHandler{
		discoverer: discoverer,
		presets:    presets,
		jobs:       jobs,
		notifier:   notifier,
		logger:     logging.OrNop(logger),
	}
}

func (h *PrinterHandler) ScanDevices(c *gin.Context) {
	h.discover(c, "scan", h.discoverer.Scan)
}

func (h *PrinterHandler) PairedDevices(c *gin.Context) {
	h.discover(c, "paired", h.discoverer.ListPaired)
}

func (h *PrinterHandler) discover(c *gin.Context, key string, fn func(context.Context) ([]discovery.PrinterDevice, error)) {
	ctx := c.Request.Context()
	// The shared run outlives any single caller; the scanner's own timeout
	// still bounds it.
	ch := h.group.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		c.Abort()
	case res := <-ch:
		if res.Err != nil {
			h.discoveryError(c, res.Err)
			return
		}
		c.JSON(http.StatusOK, DevicesResponse{
			Success:  true,
			Platform: h.discoverer.Platform(),
			Devices:  res.Val.([]discovery.PrinterDevice),
		})
	}
}

func (h *PrinterHandler) discoveryError(c *gin.Context, err error) {
	h.logger.Warn("bluetooth discovery failed", zap.Error(err))

	if errors.Is(err, discovery.ErrUnsupportedPlatform) {
		c.JSON(http.StatusNotImplemented, errorResponse(err.Error()))
		return
	}

	resp := errorResponse(err.Error())
	var discErr *discovery.DiscoveryError
	if errors.As(err, &discErr) {
		resp.Suggestion = discErr.Suggestion
	}
	c.JSON(http.StatusInternalServerError, resp)
}

func (h *PrinterHandler) ListConfigs(c *gin.Context) {
	presets, err := h.presets.ListPresets(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to list printer configs", err)
		return
	}
	if presets == nil {
		presets = []*db.PrinterPreset{}
	}

	c.JSON(http.StatusOK, PresetsResponse{Success: true, Configs: presets})
}

func (h *PrinterHandler) CreateConfig(c *gin.Context) {
	var req CreatePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if req.Type == "" {
		req.Type = "epson"
	}

	extra := map[string]any{}
	if req.Width > 0 {
		extra["width"] = req.Width
	}
	configJSON, err := json.Marshal(extra)
	if err != nil {
		h.serverError(c, "failed to encode printer config", err)
		return
	}

	preset := &db.PrinterPreset{
		Name:       req.Name,
		Type:       req.Type,
		Interface:  req.Interface,
		ConfigJSON: string(configJSON),
		Active:     req.Active,
	}

	if err := h.presets.CreatePreset(c.Request.Context(), preset); err != nil {
		if errors.Is(err, db.ErrPresetExists) {
			c.JSON(http.StatusConflict, errorResponse("Printer config with this name already exists"))
			return
		}
		h.serverError(c, "failed to create printer config", err)
		return
	}

	c.JSON(http.StatusCreated, PresetResponse{Success: true, Config: preset})
}

func (h *PrinterHandler) ActivateConfig(c *gin.Context) {
	id, ok := h.parsePresetID(c)
	if !ok {
		return
	}

	if err := h.presets.ActivatePreset(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrPresetNotFound) {
			c.JSON(http.StatusNotFound, errorResponse("Printer config not found"))
			return
		}
		h.serverError(c, "failed to activate printer config", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Printer config activated"})
}

// TestConfig queues a short test receipt addressed to the preset.
func (h *PrinterHandler) TestConfig(c *gin.Context) {
	id, ok := h.parsePresetID(c)
	if !ok {
		return
	}

	preset, err := h.presets.GetPreset(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrPresetNotFound) {
			c.JSON(http.StatusNotFound, errorResponse("Printer config not found"))
			return
		}
		h.serverError(c, "failed to get printer config", err)
		return
	}

	printerConfig, err := presetPrinterConfig(preset)
	if err != nil {
		h.serverError(c, "failed to build printer config", err)
		return
	}

	queueID, err := h.jobs.Enqueue(c.Request.Context(), testReceipt, printerConfig)
	if err != nil {
		h.serverError(c, "failed to enqueue test print", err)
		return
	}
	h.notifier.Broadcast(notify.QueueUpdated())

	c.JSON(http.StatusOK, EnqueueResponse{
		Success: true,
		Message: "Test print queued",
		QueueID: queueID,
	})
}

func (h *PrinterHandler) parsePresetID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid printer config ID"))
		return 0, false
	}
	return id, true
}

func (h *PrinterHandler) serverError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, errorResponse("Internal server error"))
}

// presetPrinterConfig merges the preset's extra settings with its type and
// interface into the printerConfig document stored on a job.
func presetPrinterConfig(p *db.PrinterPreset) (string, error) {
	cfg := map[string]any{}
	if p.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(p.ConfigJSON), &cfg); err != nil {
			return "", err
		}
	}
	cfg["type"] = p.Type
	cfg["interface"] = p.Interface

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
