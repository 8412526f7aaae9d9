package depot

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chosenoffset/measure/measure-example/internal/catalog"
	"github.com/chosenoffset/measure/pkg/units"
)

// CreateTankRequest is the input for /tank
type CreateTankRequest struct {
	ID   string `json:"id"`
	Unit string `json:"unit"`
}

// FillRequest is the input for /fill
type FillRequest struct {
	ID       string  `json:"id"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// TransferRequest is the input for /transfer
type TransferRequest struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// LevelResponse describes a tank level.
type LevelResponse struct {
	ID       string  `json:"id"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Text     string  `json:"text"`
}

func (d *Depot) HandleCreateTank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateTankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := d.CreateTank(req.ID, req.Unit); err != nil {
		d.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (d *Depot) HandleFill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	amount, err := d.measure(req.Quantity, req.Unit)
	if err != nil {
		d.writeError(w, err)
		return
	}
	level, err := d.Fill(req.ID, amount)
	if err != nil {
		d.writeError(w, err)
		return
	}
	d.writeLevel(w, req.ID, level)
}

func (d *Depot) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	amount, err := d.measure(req.Quantity, req.Unit)
	if err != nil {
		d.writeError(w, err)
		return
	}
	if err := d.Transfer(req.From, req.To, amount); err != nil {
		d.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *Depot) HandleLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	level, err := d.Level(id, r.URL.Query().Get("unit"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	d.writeLevel(w, id, level)
}

func (d *Depot) measure(quantity float64, unitKey string) (units.Measure, error) {
	unit, err := d.catalog.Lookup(unitKey)
	if err != nil {
		return units.Measure{}, err
	}
	return units.New(quantity, unit), nil
}

// writeError maps depot and unit errors onto status codes.
func (d *Depot) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, units.ErrUnitMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrTankNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrTankExists):
		status = http.StatusConflict
	case errors.Is(err, ErrInsufficientLevel),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrSameTank),
		errors.Is(err, catalog.ErrUnknownUnit):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		d.logger.WithError(err).Error("depot request failed")
	}
	http.Error(w, err.Error(), status)
}

func (d *Depot) writeLevel(w http.ResponseWriter, id string, level units.Measure) {
	body, err := json.Marshal(LevelResponse{
		ID:       id,
		Quantity: level.Quantity(),
		Unit:     level.Unit().String(),
		Text:     level.String(),
	})
	if err != nil {
		d.logger.WithField("tank", id).WithError(err).Error("encode level")
		http.Error(w, "failed to encode level", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(append(body, '\n')); err != nil {
		d.logger.WithField("tank", id).WithError(err).Debug("write level")
	}
}
