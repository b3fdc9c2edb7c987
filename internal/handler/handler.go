package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iurnickita/importcredit/internal/auth"
	"github.com/iurnickita/importcredit/internal/handler/config"
	"github.com/iurnickita/importcredit/internal/idempotency"
	"github.com/iurnickita/importcredit/internal/ledger"
	"github.com/iurnickita/importcredit/internal/lifecycle"
	"github.com/iurnickita/importcredit/internal/logger"
	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
	"github.com/iurnickita/importcredit/internal/service"
	"github.com/iurnickita/importcredit/internal/settlement"
	"github.com/iurnickita/importcredit/internal/terms"
	"github.com/iurnickita/importcredit/internal/token"
)

const HeaderIdempotencyKey = "Idempotency-Key"

var validate = validator.New()

func Serve(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	return srv.ListenAndServe()
}

type handler struct {
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	// администраторы и финансовая организация
	staff := func(f http.HandlerFunc) http.HandlerFunc {
		return logger.RequestLogMdlw(h.auth.RequireRole(f, token.RoleAdmin, token.RoleFinancialInstitution), h.zaplog)
	}
	// любой пользователь с токеном
	user := func(f http.HandlerFunc) http.HandlerFunc {
		return logger.RequestLogMdlw(h.auth.Middleware(f), h.zaplog)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/credit-applications/{id}", staff(h.PutCreditApplication))
	mux.HandleFunc("GET /api/credit-applications/{id}/usage", user(h.GetUsage))
	mux.HandleFunc("PUT /api/users/{id}/financial-settings", staff(h.PutFinancialSettings))
	mux.HandleFunc("POST /api/settlements/preview", user(h.PostPreview))
	mux.HandleFunc("POST /api/imports", user(h.PostImport))
	mux.HandleFunc("GET /api/imports/{id}", user(h.GetImport))
	mux.HandleFunc("PUT /api/imports/{id}/value", user(h.PutImportValue))
	mux.HandleFunc("POST /api/imports/{id}/products", user(h.PostProduct))
	mux.HandleFunc("PUT /api/imports/{id}/products/{index}", user(h.PutProduct))
	mux.HandleFunc("DELETE /api/imports/{id}/products/{index}", user(h.DeleteProduct))
	mux.HandleFunc("POST /api/imports/{id}/transitions", user(h.PostTransition))
	mux.HandleFunc("GET /api/imports/{id}/timeline", user(h.GetTimeline))

	return mux
}

// Ответы

type ErrorJSONResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type creditDetails struct {
	ApplicationID string      `json:"application_id"`
	Requested     money.Money `json:"requested"`
	Available     money.Money `json:"available"`
	Limit         money.Money `json:"limit"`
}

type transitionDetails struct {
	From    model.Stage `json:"from"`
	To      model.Stage `json:"to"`
	Allowed model.Stage `json:"allowed,omitempty"`
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrApplicationNotOwned):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, terms.ErrApplicationNotFinalized),
		errors.Is(err, lifecycle.ErrImportNotEditable),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, service.ErrApplicationLocked),
		errors.Is(err, service.ErrValueDerived),
		errors.Is(err, idempotency.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientData),
		errors.Is(err, service.ErrInvalidDraft),
		errors.Is(err, service.ErrInvalidApplication),
		errors.Is(err, service.ErrProductIndex),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidCurrency),
		errors.Is(err, money.ErrInvalidPercentage),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, terms.ErrApplicationRequired),
		errors.Is(err, terms.ErrUnknownPaymentMethod),
		errors.Is(err, terms.ErrInvalidTermDays),
		errors.Is(err, settlement.ErrInvalidSettlementInput),
		errors.Is(err, settlement.ErrInvalidProduct),
		errors.Is(err, lifecycle.ErrUnknownTransportMethod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.zaplog.Error("request failed", zap.Error(err))
		h.writeJSON(w, status, ErrorJSONResponse{Error: "internal error"})
		return
	}

	resp := ErrorJSONResponse{Error: err.Error()}
	var creditErr *ledger.InsufficientCreditError
	var transitionErr *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &creditErr):
		resp.Details = creditDetails{
			ApplicationID: creditErr.ApplicationID,
			Requested:     creditErr.Requested,
			Available:     creditErr.Available,
			Limit:         creditErr.Limit,
		}
	case errors.As(err, &transitionErr):
		resp.Details = transitionDetails{From: transitionErr.From, To: transitionErr.To, Allowed: transitionErr.Allowed}
	}
	h.writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and validates its tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func (h *handler) badRequest(w http.ResponseWriter, err error) {
	h.writeJSON(w, http.StatusBadRequest, ErrorJSONResponse{Error: err.Error()})
}

func actorOf(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

// Заявки и настройки

func (h *handler) PutCreditApplication(w http.ResponseWriter, r *http.Request) {
	var snapshot model.ApplicationSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		h.badRequest(w, err)
		return
	}
	snapshot.ID = r.PathValue("id")
	if err := validate.Struct(snapshot); err != nil {
		h.badRequest(w, err)
		return
	}
	app, err := snapshot.ToModel()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err = h.service.PutCreditApplication(r.Context(), app); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) PutFinancialSettings(w http.ResponseWriter, r *http.Request) {
	var snapshot model.SettingsSnapshot
	if err := decode(r, &snapshot); err != nil {
		h.badRequest(w, err)
		return
	}
	settings, err := snapshot.ToModel(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err = h.service.PutFinancialSettings(r.Context(), settings); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.GetUsage(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, usage)
}

// Импорты

type ImportDraftJSONRequest struct {
	CargoType       string `json:"cargo_type" validate:"required,oneof=FCL LCL"`
	TransportMethod string `json:"transport_method" validate:"required,oneof=maritimo aereo"`
	Incoterm        string `json:"incoterm"`
	Currency        string `json:"currency" validate:"required,len=3"`
	// TotalValue may be omitted for LCL imports that list products.
	TotalValue          *money.Money       `json:"total_value" validate:"required_without=Products"`
	Products            []model.Product    `json:"products" validate:"omitempty,dive"`
	PaymentMethod       string             `json:"payment_method" validate:"required,oneof=credit own_funds"`
	CreditApplicationID string             `json:"credit_application_id" validate:"required_if=PaymentMethod credit"`
	Terms               *model.CreditTerms `json:"terms,omitempty"`
}

func (req ImportDraftJSONRequest) draft(ownerID string) (model.ImportDraft, error) {
	cur, err := money.ParseCurrency(req.Currency)
	if err != nil {
		return model.ImportDraft{}, err
	}
	total := money.Zero(cur)
	if req.TotalValue != nil {
		total = *req.TotalValue
	}
	return model.ImportDraft{
		OwnerID:             ownerID,
		CargoType:           model.CargoType(req.CargoType),
		TransportMethod:     model.TransportMethod(req.TransportMethod),
		Incoterm:            req.Incoterm,
		TotalValue:          total,
		Products:            req.Products,
		PaymentMethod:       model.PaymentMethod(req.PaymentMethod),
		CreditApplicationID: req.CreditApplicationID,
		Terms:               req.Terms,
	}, nil
}

func (h *handler) readDraft(w http.ResponseWriter, r *http.Request) (model.ImportDraft, bool) {
	var req ImportDraftJSONRequest
	if err := decode(r, &req); err != nil {
		h.badRequest(w, err)
		return model.ImportDraft{}, false
	}
	draft, err := req.draft(actorOf(r).ID)
	if err != nil {
		h.writeError(w, err)
		return model.ImportDraft{}, false
	}
	return draft, true
}

func (h *handler) PostPreview(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.readDraft(w, r)
	if !ok {
		return
	}
	preview, err := h.service.PreviewSettlement(r.Context(), draft)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, preview)
}

func (h *handler) PostImport(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.readDraft(w, r)
	if !ok {
		return
	}
	result, err := h.service.CreateImport(r.Context(), r.Header.Get(HeaderIdempotencyKey), draft, actorOf(r).ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

func (h *handler) GetImport(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetImport(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type ValueJSONRequest struct {
	TotalValue *money.Money `json:"total_value" validate:"required"`
}

func (h *handler) PutImportValue(w http.ResponseWriter, r *http.Request) {
	var req ValueJSONRequest
	if err := decode(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	result, err := h.service.SetImportValue(r.Context(), r.PathValue("id"), *req.TotalValue, actorOf(r).ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type ProductJSONRequest struct {
	Name      string       `json:"name" validate:"required"`
	Quantity  int64        `json:"quantity" validate:"gt=0"`
	UnitPrice *money.Money `json:"unit_price" validate:"required"`
}

func (req ProductJSONRequest) product() model.Product {
	return model.Product{Name: req.Name, Quantity: req.Quantity, UnitPrice: *req.UnitPrice}
}

func (h *handler) PostProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductJSONRequest
	if err := decode(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	result, err := h.service.AddProduct(r.Context(), r.PathValue("id"), req.product(), actorOf(r).ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) PutProduct(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.badRequest(w, err)
		return
	}
	var req ProductJSONRequest
	if err = decode(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	result, err := h.service.UpdateProduct(r.Context(), r.PathValue("id"), index, req.product(), actorOf(r).ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.badRequest(w, err)
		return
	}
	result, err := h.service.RemoveProduct(r.Context(), r.PathValue("id"), index, actorOf(r).ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type TransitionJSONRequest struct {
	Stage string `json:"stage" validate:"required"`
	Note  string `json:"note"`
}

func (h *handler) PostTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionJSONRequest
	if err := decode(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	result, err := h.service.TransitionImport(r.Context(), r.PathValue("id"), model.Stage(req.Stage), actorOf(r).ID, req.Note)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetTimeline(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}
