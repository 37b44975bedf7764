package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
)

func (a *API) handleListInwards(w http.ResponseWriter, r *http.Request) {
	inwards, err := a.service.ListInwards(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inwards)
}

func (a *API) handleGetInward(w http.ResponseWriter, r *http.Request) {
	inward, err := a.service.GetInward(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inward)
}

func (a *API) handleCreateInward(w http.ResponseWriter, r *http.Request) {
	var req domain.InwardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inward, err := a.service.CreateInward(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inward)
}

func (a *API) handleUpdateInward(w http.ResponseWriter, r *http.Request) {
	var req domain.InwardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inward, err := a.service.UpdateInward(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inward)
}

func (a *API) handleDeleteInward(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInward(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAttachmentCheck(w http.ResponseWriter, r *http.Request) {
	var req domain.AttachmentCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CheckAttachment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListOnRents(w http.ResponseWriter, r *http.Request) {
	rentals, err := a.service.ListOnRents(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rentals)
}

func (a *API) handleGetOnRent(w http.ResponseWriter, r *http.Request) {
	rental, err := a.service.GetOnRent(r.Context(), mux.Vars(r)["onRentNo"])
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rental)
}

func (a *API) handleCreateOnRent(w http.ResponseWriter, r *http.Request) {
	var req domain.OnRentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rental, err := a.service.CreateOnRent(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rental)
}

func (a *API) handleUpdateOnRent(w http.ResponseWriter, r *http.Request) {
	var req domain.OnRentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rental, err := a.service.UpdateOnRent(r.Context(), mux.Vars(r)["onRentNo"], req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rental)
}

func (a *API) handleDeleteOnRent(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteOnRent(r.Context(), mux.Vars(r)["onRentNo"]); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleToggleOnRent(w http.ResponseWriter, r *http.Request) {
	rental, err := a.service.ToggleOnRent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rental)
}

func (a *API) handleQuantityCheck(w http.ResponseWriter, r *http.Request) {
	var req domain.QuantityCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CheckQuantity(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReturnRentals(w http.ResponseWriter, r *http.Request) {
	rentals, err := a.service.CustomerRentals(r.Context(), mux.Vars(r)["customerId"])
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rentals)
}

func (a *API) handleReturnPreview(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	preview, err := a.service.PreviewReturn(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := a.service.ListOnRentReturns(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, returns)
}

func (a *API) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := a.service.GetOnRentReturn(r.Context(), mux.Vars(r)["returnNo"])
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.OnRentReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.CreateOnRentReturn(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

func (a *API) handleUpdateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.OnRentReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.UpdateOnRentReturn(r.Context(), mux.Vars(r)["returnNo"], req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (a *API) handleDeleteReturn(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteOnRentReturn(r.Context(), mux.Vars(r)["returnNo"]); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListPayments(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// handleCustomerReturns opens a payment sheet. paid_amount is optional so the
// sheet can be loaded before the operator types the amount.
func (a *API) handleCustomerReturns(w http.ResponseWriter, r *http.Request) {
	paid := decimal.Zero
	if raw := strings.TrimSpace(r.URL.Query().Get("paid_amount")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("paid_amount must be a number"))
			return
		}
		paid = parsed
	}
	resp, err := a.service.CustomerReturns(r.Context(), mux.Vars(r)["customerId"], paid)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req domain.AllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.Allocate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := a.service.SubmitPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}
