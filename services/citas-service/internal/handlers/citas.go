package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eecmx/citas/libs/httpx"
	"github.com/eecmx/citas/services/citas-service/internal/booking"
	"github.com/eecmx/citas/services/citas-service/internal/model"
)

// AppointmentService is what the HTTP layer needs from booking.Service.
type AppointmentService interface {
	Book(ctx context.Context, req booking.BookingRequest) (model.Appointment, error)
	ListAll(ctx context.Context) ([]model.Appointment, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]model.Appointment, error)
	Get(ctx context.Context, id int64) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, estado model.Status) (model.Appointment, error)
	Delete(ctx context.Context, id int64) error
	Location() *time.Location
}

type CitasHandler struct {
	svc    AppointmentService
	logger *slog.Logger
}

func NewCitasHandler(svc AppointmentService, logger *slog.Logger) *CitasHandler {
	return &CitasHandler{svc: svc, logger: logger}
}

// Register mounts the /api/citas routes on mux, each wrapped by guard.
func (h *CitasHandler) Register(mux *http.ServeMux, guard httpx.Middleware) {
	handle := func(pattern string, fn http.HandlerFunc) {
		var handler http.Handler = fn
		if guard != nil {
			handler = guard(handler)
		}
		mux.Handle(pattern, handler)
	}
	handle("GET /api/citas", h.List)
	handle("POST /api/citas", h.Create)
	handle("GET /api/citas/{id}", h.Get)
	handle("PUT /api/citas/{id}", h.UpdateStatus)
	handle("DELETE /api/citas/{id}", h.Delete)
	handle("GET /api/citas/cliente/{clienteId}", h.ListByCustomer)
}

type citaRequest struct {
	Nombre    string `json:"nombre"`
	Apellidos string `json:"apellidos"`
	Correo    string `json:"correo"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
	FechaHora string `json:"fechaHora"`
	Motivo    string `json:"motivo"`
}

type estadoRequest struct {
	Estado string `json:"estado"`
}

type clienteResponse struct {
	ID        int64  `json:"id"`
	Nombre    string `json:"nombre"`
	Apellidos string `json:"apellidos"`
	Correo    string `json:"correo"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
}

type citaResponse struct {
	ID        int64           `json:"id"`
	FechaHora string          `json:"fechaHora"`
	Motivo    string          `json:"motivo"`
	Estado    string          `json:"estado"`
	Cliente   clienteResponse `json:"cliente"`
}

func (h *CitasHandler) toResponse(a model.Appointment) citaResponse {
	return citaResponse{
		ID:        a.ID,
		FechaHora: booking.FormatLocalDateTime(a.FechaHora, h.svc.Location()),
		Motivo:    a.Motivo,
		Estado:    string(a.Estado),
		Cliente: clienteResponse{
			ID:        a.Cliente.ID,
			Nombre:    a.Cliente.Nombre,
			Apellidos: a.Cliente.Apellidos,
			Correo:    a.Cliente.Correo,
			Telefono:  a.Cliente.Telefono,
			Direccion: a.Cliente.Direccion,
		},
	}
}

func (h *CitasHandler) toResponses(appts []model.Appointment) []citaResponse {
	out := make([]citaResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, h.toResponse(a))
	}
	return out
}

func (h *CitasHandler) List(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponses(appts))
}

func (h *CitasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req citaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Cuerpo de la solicitud inválido.")
		return
	}
	if req.FechaHora == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "La fecha y hora de la cita es obligatoria.")
		return
	}
	fechaHora, err := booking.ParseLocalDateTime(req.FechaHora, h.svc.Location())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookingRequest{
		Nombre:    req.Nombre,
		Apellidos: req.Apellidos,
		Correo:    req.Correo,
		Telefono:  req.Telefono,
		Direccion: req.Direccion,
		FechaHora: fechaHora,
		Motivo:    req.Motivo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.toResponse(appt))
}

func (h *CitasHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(appt))
}

func (h *CitasHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req estadoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Cuerpo de la solicitud inválido.")
		return
	}
	appt, err := h.svc.UpdateStatus(r.Context(), id, model.Status(req.Estado))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(appt))
}

func (h *CitasHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CitasHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "clienteId")
	if !ok {
		return
	}
	appts, err := h.svc.ListByCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponses(appts))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteMessage(w, http.StatusBadRequest, "Identificador inválido.")
		return 0, false
	}
	return id, true
}

func (h *CitasHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteMessage(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Cita no encontrada.")
	case errors.Is(err, booking.ErrConflict):
		httpx.WriteMessage(w, http.StatusConflict, "El cliente se está registrando en otra solicitud; intente de nuevo.")
	default:
		h.logger.Error("appointment request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Error interno del servidor.")
	}
}
