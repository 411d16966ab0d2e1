package controllers

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"ogd/internal/importer"
	"ogd/internal/models"
	"ogd/internal/providers"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type importRequestBody struct {
	Opponent string `json:"opponent"`
	MaxGames int    `json:"maxGames"`
	Color    string `json:"color"`
	Rated    string `json:"rated"`
}

func (b importRequestBody) validateFilters() error {
	switch b.Color {
	case "", "white", "black":
	default:
		return errors.New(`color must be "white" or "black"`)
	}
	switch b.Rated {
	case "", "true", "false":
	default:
		return errors.New(`rated must be "true" or "false"`)
	}
	return nil
}

type ImportController struct {
	logger       providers.Logger
	orchestrator importer.OrchestratorInterface
}

func NewImportController(logger providers.Logger, orchestrator importer.OrchestratorInterface) *ImportController {
	return &ImportController{
		logger:       logger,
		orchestrator: orchestrator,
	}
}

func decodeOpponent(w http.ResponseWriter, r *http.Request) (importRequestBody, models.OpponentID, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var body importRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return body, models.OpponentID{}, false
	}
	op, err := models.ParseOpponentID(body.Opponent)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return body, models.OpponentID{}, false
	}
	return body, op, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func (ic *ImportController) Enqueue(w http.ResponseWriter, r *http.Request) {
	body, op, ok := decodeOpponent(w, r)
	if !ok {
		return
	}
	if err := body.validateFilters(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := ic.orchestrator.Enqueue(models.ImportTask{
		Opponent: op,
		MaxGames: body.MaxGames,
		Color:    body.Color,
		Rated:    body.Rated,
	})
	if errors.Is(err, importer.ErrAlreadyQueued) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		ic.logger.Errorf(providers.TypePost, "Enqueue %s failed: %s", op.String(), err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"opponent": op.String()})
}

func (ic *ImportController) Dequeue(w http.ResponseWriter, r *http.Request) {
	_, op, ok := decodeOpponent(w, r)
	if !ok {
		return
	}
	if !ic.orchestrator.Dequeue(op) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"opponent": op.String()})
}

func (ic *ImportController) Start(w http.ResponseWriter, r *http.Request) {
	if err := ic.orchestrator.Start(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (ic *ImportController) Stop(w http.ResponseWriter, r *http.Request) {
	err := ic.orchestrator.Stop()
	if errors.Is(err, importer.ErrNotRunning) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (ic *ImportController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ic.orchestrator.Status())
}
