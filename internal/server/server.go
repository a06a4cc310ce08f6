package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/tax-atlas/internal/atlas"
	"github.com/iwvelando/tax-atlas/internal/catalog"
	"github.com/iwvelando/tax-atlas/internal/optimizer"
	"github.com/iwvelando/tax-atlas/internal/rates"
	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/validation"
	"go.uber.org/zap"
)

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	version       string
	catalog       *catalog.Catalog
	provider      rates.Provider
}

// NewHandler constructs the HTTP handler that serves the tax API.
func NewHandler(logger *zap.Logger, maxUploadSize int64, version string, c *catalog.Catalog, provider rates.Provider) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	if provider == nil {
		provider = rates.NewStaticProvider(nil)
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: maxUploadSize,
		version:       trimmedVersion,
		catalog:       c,
		provider:      provider,
	}

	mux := http.NewServeMux()

	// Country names known to the catalog
	mux.HandleFunc("/api/countries", h.handleCountries)

	// Atlas for a profile across many countries
	mux.HandleFunc("/api/tax", h.handleTax)

	// Single country with the profile in the query string
	mux.HandleFunc("/api/tax/{country}", h.handleCountryTax)

	// Income at which a country reaches a target effective rate
	mux.HandleFunc("/api/solve/{country}", h.handleSolve)

	// Version endpoint for client metadata
	mux.HandleFunc("/api/version", h.handleVersion)

	return mux
}

type taxRequest struct {
	Profile   tax.Profile        `json:"profile"`
	Countries []string           `json:"countries,omitempty"`
	Rates     map[string]float64 `json:"rates,omitempty"`
}

type taxResponse struct {
	Profile  tax.Profile   `json:"profile"`
	Entries  []atlas.Entry `json:"entries"`
	Summary  atlas.Summary `json:"summary"`
	Duration string        `json:"duration"`
}

type countryResponse struct {
	atlas.Entry
	Explanation []catalog.Explanation `json:"explanation,omitempty"`
}

func (h *handler) handleCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"countries":  h.catalog.Names(),
		"currencies": h.catalog.Currencies(),
	})
}

func (h *handler) handleTax(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleTax"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var req taxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return
	}

	if err := validation.ValidateProfile(req.Profile); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	exchangeRates, ok := h.resolveRates(w, r, req.Rates, op)
	if !ok {
		return
	}

	entries, err := atlas.GetAtlas(h.logger, h.catalog, req.Countries, req.Profile, exchangeRates)
	if err != nil {
		h.respondEvaluationError(w, err, op)
		return
	}

	elapsed := time.Since(start)
	h.logger.Info("atlas computed",
		zap.String("op", op),
		zap.Int("countries", len(entries)),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, taxResponse{
		Profile:  req.Profile,
		Entries:  entries,
		Summary:  atlas.Summarize(entries),
		Duration: elapsed.String(),
	})
}

func (h *handler) handleCountryTax(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCountryTax"
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	country := strings.TrimSpace(r.PathValue("country"))
	if country == "" {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing country", op)
		return
	}

	profile, err := parseProfile(r)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	if err := validation.ValidateProfile(profile); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	exchangeRates, ok := h.resolveRates(w, r, nil, op)
	if !ok {
		return
	}

	result, err := h.catalog.Evaluate(country, profile, exchangeRates)
	if err != nil {
		h.respondEvaluationError(w, err, op)
		return
	}

	response := countryResponse{Entry: atlas.Entry{Country: country, Result: result}}
	if coerceBool(r.URL.Query().Get("explain")) {
		response.Explanation, err = h.catalog.Explain(country, profile, exchangeRates)
		if err != nil {
			h.respondEvaluationError(w, err, op)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSolve"
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	country := strings.TrimSpace(r.PathValue("country"))
	raw := strings.TrimSpace(r.URL.Query().Get("rate"))
	target, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("invalid target rate %q", raw), op)
		return
	}

	profile, err := parseProfile(r)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	exchangeRates, ok := h.resolveRates(w, r, nil, op)
	if !ok {
		return
	}

	runner, err := optimizer.NewRunner(h.logger, h.catalog, exchangeRates)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
		return
	}

	summary, err := runner.Solve(country, profile, target)
	switch {
	case errors.Is(err, optimizer.ErrInvalidTarget), errors.Is(err, tax.ErrImpossibleProfile):
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	case errors.Is(err, optimizer.ErrRateUnavailable):
		h.respondErrorWithOp(w, http.StatusUnprocessableEntity, err.Error(), op)
		return
	case err != nil:
		h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// resolveRates prefers rates supplied with the request over the provider.
func (h *handler) resolveRates(w http.ResponseWriter, r *http.Request, supplied map[string]float64, op string) (tax.ExchangeRates, bool) {
	if len(supplied) > 0 {
		return rates.Normalize(supplied), true
	}

	exchangeRates, err := h.provider.Rates(r.Context())
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadGateway, fmt.Sprintf("failed to load exchange rates: %v", err), op)
		return nil, false
	}
	return exchangeRates, true
}

func (h *handler) respondEvaluationError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, tax.ErrImpossibleProfile) {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to compute tax: %v", err), op)
}

func parseProfile(r *http.Request) (tax.Profile, error) {
	query := r.URL.Query()
	profile := tax.Profile{
		IncomeUSD: constants.DefaultIncomeUSD,
		Married:   coerceBool(query.Get("married")),
		OneIncome: true,
	}

	if raw := strings.TrimSpace(query.Get("income")); raw != "" {
		income, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return tax.Profile{}, fmt.Errorf("invalid income %q", raw)
		}
		profile.IncomeUSD = income
	}
	if raw := strings.TrimSpace(query.Get("oneIncome")); raw != "" {
		profile.OneIncome = coerceBool(raw)
	}
	return profile, nil
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("tax request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func coerceBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false
		}
		if parsed, err := strconv.ParseBool(trimmed); err == nil {
			return parsed
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}
