package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"rentaldesk/console/internal/report"
)

func (a *API) handleCustomerReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" && format != "pdf" {
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv or pdf"))
		return
	}

	customerID := mux.Vars(r)["customerId"]
	st, err := a.service.Statement(r.Context(), customerID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("statement-%s-%s", customerID, st.GeneratedAt.UTC().Format("20060102"))
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		if err := report.RenderCSV(w, st); err != nil {
			a.logger.Errorw("failed to write statement csv", "customer_id", customerID, "error", err)
		}
	case "pdf":
		pdf, err := report.RenderPDF(st)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".pdf"))
		_, _ = w.Write(pdf)
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

func (a *API) handleSendReport(w http.ResponseWriter, r *http.Request) {
	if err := a.service.SendStatement(r.Context(), mux.Vars(r)["customerId"]); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}
