package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granobox/spool/internal/core"
	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/discovery"
	"github.com/granobox/spool/internal/notify"
)

type printerFixture struct {
	discoverer *fakeDiscoverer
	presets    *fakePresetStore
	jobs       *fakeQueueStore
	notifier   *fakeNotifier
	router     *gin.Engine
}

func newPrinterFixture() *printerFixture {
	f := &printerFixture{
		discoverer: &fakeDiscoverer{},
		presets:    &fakePresetStore{},
		jobs:       &fakeQueueStore{},
		notifier:   &fakeNotifier{},
	}
	h := NewPrinterHandler(f.discoverer, f.presets, f.jobs, f.notifier, nil)

	r := gin.New()
	r.GET("/api/bluetooth/scan", h.ScanDevices)
	r.GET("/api/bluetooth/paired", h.PairedDevices)
	r.GET("/api/printers/configs", h.ListConfigs)
	r.POST("/api/printers/configs", h.CreateConfig)
	r.POST("/api/printers/configs/:id/activate", h.ActivateConfig)
	r.POST("/api/printers/configs/:id/test", h.TestConfig)
	f.router = r
	return f
}

func TestScanDevices(t *testing.T) {
	f := newPrinterFixture()
	f.discoverer.devices = []discovery.PrinterDevice{
		{Address: "00:11:22:33:44:55", Name: "EPSON_TM-T20", Type: discovery.DeviceTypePrinter},
	}

	w := perform(t, f.router, http.MethodGet, "/api/bluetooth/scan", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "linux", body["platform"])
	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "00:11:22:33:44:55", devices[0].(map[string]any)["address"])
}

// slowDiscoverer holds Scan open until release is closed, then reports
// whatever its context says.
type slowDiscoverer struct {
	fakeDiscoverer
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *slowDiscoverer) Scan(ctx context.Context) ([]discovery.PrinterDevice, error) {
	d.once.Do(func() { close(d.started) })
	<-d.release
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("bluetoothctl devices: %w", err)
	}
	return d.devices, nil
}

func TestScanSurvivesFirstCallerLeaving(t *testing.T) {
	d := &slowDiscoverer{
		fakeDiscoverer: fakeDiscoverer{devices: []discovery.PrinterDevice{
			{Address: "00:11:22:33:44:55", Name: "XPrinter", Type: discovery.DeviceTypePrinter},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := NewPrinterHandler(d, &fakePresetStore{}, &fakeQueueStore{}, &fakeNotifier{}, nil)
	r := gin.New()
	r.GET("/api/bluetooth/scan", h.ScanDevices)

	ctx, cancel := context.WithCancel(context.Background())
	first := httptest.NewRecorder()
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req := httptest.NewRequest(http.MethodGet, "/api/bluetooth/scan", nil).WithContext(ctx)
		r.ServeHTTP(first, req)
	}()
	<-d.started

	var second *httptest.ResponseRecorder
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		second = perform(t, r, http.MethodGet, "/api/bluetooth/scan", "")
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-firstDone
	close(d.release)
	<-secondDone

	require.Equal(t, http.StatusOK, second.Code)
	body := decode(t, second)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["devices"], 1)
}

func TestPairedDevicesEmpty(t *testing.T) {
	f := newPrinterFixture()
	f.discoverer.paired = []discovery.PrinterDevice{}

	w := perform(t, f.router, http.MethodGet, "/api/bluetooth/paired", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["devices"])
}

func TestScanFailureCarriesSuggestion(t *testing.T) {
	f := newPrinterFixture()
	f.discoverer.err = &discovery.DiscoveryError{
		Command:    "bluetoothctl devices",
		Err:        fmt.Errorf("exit status 1"),
		Suggestion: "Install bluez",
	}

	w := perform(t, f.router, http.MethodGet, "/api/bluetooth/scan", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "bluetoothctl")
	assert.Equal(t, "Install bluez", body["suggestion"])
}

func TestScanUnsupportedPlatform(t *testing.T) {
	f := newPrinterFixture()
	f.discoverer.err = fmt.Errorf("%w: windows", discovery.ErrUnsupportedPlatform)

	w := perform(t, f.router, http.MethodGet, "/api/bluetooth/paired", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestCreateAndActivateConfig(t *testing.T) {
	f := newPrinterFixture()

	w := perform(t, f.router, http.MethodPost, "/api/printers/configs",
		`{"name":"counter","interface":"/dev/rfcomm0","width":32,"active":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	cfg := decode(t, w)["config"].(map[string]any)
	assert.Equal(t, "epson", cfg["type"])
	assert.JSONEq(t, `{"width":32}`, cfg["config_json"].(string))

	w = perform(t, f.router, http.MethodPost, "/api/printers/configs",
		`{"name":"kitchen","type":"star","interface":"tcp://10.0.0.9:9100"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, f.router, http.MethodPost, "/api/printers/configs",
		`{"name":"kitchen","type":"star","interface":"tcp://10.0.0.9:9100"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = perform(t, f.router, http.MethodPost, "/api/printers/configs/2/activate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.presets.presets[0].Active)
	assert.True(t, f.presets.presets[1].Active)

	w = perform(t, f.router, http.MethodGet, "/api/printers/configs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["configs"], 2)
}

func TestCreateConfigValidation(t *testing.T) {
	f := newPrinterFixture()

	for _, body := range []string{
		`{"interface":"/dev/rfcomm0"}`,
		`{"name":"x"}`,
		`{"name":"x","interface":"/dev/rfcomm0","type":"zebra"}`,
	} {
		w := perform(t, f.router, http.MethodPost, "/api/printers/configs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, f.presets.presets)
}

func TestActivateConfigErrors(t *testing.T) {
	f := newPrinterFixture()

	w := perform(t, f.router, http.MethodPost, "/api/printers/configs/abc/activate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(t, f.router, http.MethodPost, "/api/printers/configs/9/activate", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.presets.err = errStoreDown
	w = perform(t, f.router, http.MethodGet, "/api/printers/configs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])
}

func TestTestConfigQueuesDecodableJob(t *testing.T) {
	f := newPrinterFixture()
	require.NoError(t, f.presets.CreatePreset(context.Background(), &db.PrinterPreset{
		Name:       "counter",
		Type:       "star",
		Interface:  "/dev/rfcomm0",
		ConfigJSON: `{"width":32}`,
	}))

	w := perform(t, f.router, http.MethodPost, "/api/printers/configs/1/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["queueId"])
	assert.Equal(t, []notify.Event{notify.QueueUpdated()}, f.notifier.events)

	require.Len(t, f.jobs.jobs, 1)
	commands, cfg, err := core.DecodeJob(f.jobs.jobs[0])
	require.NoError(t, err)
	assert.Equal(t, core.PrinterConfig{Type: "star", Interface: "/dev/rfcomm0", Width: 32}, cfg)

	enc, err := core.NewEncoder(cfg)
	require.NoError(t, err)
	_, err = enc.Encode(commands)
	assert.NoError(t, err)

	w = perform(t, f.router, http.MethodPost, "/api/printers/configs/5/test", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
