package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/andreweacott/risegarden-exporter/pkg/entity"
	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/andreweacott/risegarden-exporter/pkg/integration"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
)

// Bridge is what the HTTP surface needs from a set-up integration
type Bridge interface {
	HealthSource
	Entities() []entity.Entity
	Entity(uniqueID string) (entity.Entity, error)
	Light(gardenID int64) (*entity.Light, error)
	SetPump(ctx context.Context, gardenID int64, on bool) error
	LightSchedule(ctx context.Context, gardenID int64) (garden.Document, error)
	PumpSchedule(ctx context.Context, gardenID int64) (garden.Document, error)
	LastSensorData(ctx context.Context, gardenID int64) (garden.Document, error)
}

type apiHandler struct {
	bridge Bridge
	log    *logger.Logger
}

type lightState struct {
	GardenID   int64 `json:"garden_id"`
	IsOn       bool  `json:"is_on"`
	Brightness *int  `json:"brightness"`
	Available  bool  `json:"available"`
}

type lightCommand struct {
	On         *bool `json:"on"`
	Brightness *int  `json:"brightness,omitempty"`
}

type pumpCommand struct {
	On *bool `json:"on"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *apiHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entities", h.listEntities)
	mux.HandleFunc("GET /api/entities/{unique_id}", h.getEntity)
	mux.HandleFunc("GET /api/gardens/{id}/light", h.getLight)
	mux.HandleFunc("POST /api/gardens/{id}/light", h.setLight)
	mux.HandleFunc("POST /api/gardens/{id}/pump", h.setPump)
	mux.HandleFunc("GET /api/gardens/{id}/light-schedule", h.document(h.bridge.LightSchedule))
	mux.HandleFunc("GET /api/gardens/{id}/pump-schedule", h.document(h.bridge.PumpSchedule))
	mux.HandleFunc("GET /api/gardens/{id}/sensors", h.document(h.bridge.LastSensorData))
}

func (h *apiHandler) listEntities(w http.ResponseWriter, r *http.Request) {
	entities := h.bridge.Entities()
	states := make([]entity.State, 0, len(entities))
	for _, e := range entities {
		states = append(states, entity.StateOf(e))
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *apiHandler) getEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.bridge.Entity(r.PathValue("unique_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity.StateOf(e))
}

func (h *apiHandler) getLight(w http.ResponseWriter, r *http.Request) {
	id, ok := gardenID(w, r)
	if !ok {
		return
	}
	light, err := h.bridge.Light(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOfLight(id, light))
}

func (h *apiHandler) setLight(w http.ResponseWriter, r *http.Request) {
	id, ok := gardenID(w, r)
	if !ok {
		return
	}

	var cmd lightCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.On == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"on": bool, "brightness": 0-255}`})
		return
	}
	if cmd.Brightness != nil && (*cmd.Brightness < 0 || *cmd.Brightness > entity.MaxBrightness) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "brightness must be between 0 and 255"})
		return
	}

	light, err := h.bridge.Light(id)
	if err != nil {
		h.fail(w, err)
		return
	}

	if *cmd.On {
		err = light.TurnOn(r.Context(), cmd.Brightness)
	} else {
		err = light.TurnOff(r.Context())
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOfLight(id, light))
}

func (h *apiHandler) setPump(w http.ResponseWriter, r *http.Request) {
	id, ok := gardenID(w, r)
	if !ok {
		return
	}

	var cmd pumpCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.On == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"on": bool}`})
		return
	}

	if err := h.bridge.SetPump(r.Context(), id, *cmd.On); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"garden_id": id, "pump": *cmd.On})
}

func (h *apiHandler) document(fetch func(context.Context, int64) (garden.Document, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := gardenID(w, r)
		if !ok {
			return
		}
		doc, err := fetch(r.Context(), id)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// fail maps bridge errors to HTTP statuses
func (h *apiHandler) fail(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, integration.ErrUnknownGarden), errors.Is(err, integration.ErrUnknownEntity):
		status = http.StatusNotFound
	case errors.Is(err, integration.ErrUnloaded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, garden.ErrInvalidLevel):
		status = http.StatusBadRequest
	default:
		h.log.WithRequestID(w.Header().Get(requestIDHeader)).WithError(err).Warn("Rise Gardens command failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func gardenID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "garden id must be an integer"})
		return 0, false
	}
	return id, true
}

func stateOfLight(id int64, l *entity.Light) lightState {
	return lightState{
		GardenID:   id,
		IsOn:       l.IsOn(),
		Brightness: l.Brightness(),
		Available:  l.Available(),
	}
}
