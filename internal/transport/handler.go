// Package transport exposes the plain JSON REST handlers for
// `POST /api/analyze`, `POST /api/analyze_block`, and `GET /api/health`
// (spec.md §6.1-6.5). It does nothing but decode requests, call the
// core analyzer, and serialize its result or error envelope.
package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/analyzer"
	"chainlens/internal/metrics"
)

// Handler wires the three HTTP endpoints onto the core analyzer.
type Handler struct {
	logger *zap.Logger
}

// NewHandler returns a Handler that logs through logger.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

// Register attaches the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/analyze", h.Analyze)
	mux.HandleFunc("/api/analyze_block", h.AnalyzeBlock)
	mux.HandleFunc("/api/health", h.Health)
}

type prevoutRequest struct {
	TxID            string `json:"txid"`
	Vout            uint32 `json:"vout"`
	ValueSats       uint64 `json:"value_sats"`
	ScriptPubKeyHex string `json:"script_pubkey_hex"`
}

type analyzeRequest struct {
	Network  string           `json:"network"`
	RawTx    string           `json:"raw_tx"`
	Prevouts []prevoutRequest `json:"prevouts"`
}

// Analyze implements POST /api/analyze (spec.md §6.1, §6.3).
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apierr.Wrap(apierr.CodeInvalidJSON, err))
		metrics.ObserveAnalyzer("tx", err, started)
		return
	}

	prevouts := make([]analyzer.PrevOutInput, len(req.Prevouts))
	for i, p := range req.Prevouts {
		prevouts[i] = analyzer.PrevOutInput{
			TxID:            p.TxID,
			Vout:            p.Vout,
			ValueSats:       p.ValueSats,
			ScriptPubKeyHex: p.ScriptPubKeyHex,
		}
	}

	result, err := analyzer.AnalyzeTransaction(analyzer.TransactionRequest{
		Network:  req.Network,
		RawTxHex: req.RawTx,
		Prevouts: prevouts,
	})
	metrics.ObserveAnalyzer("tx", err, started)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// AnalyzeBlock implements POST /api/analyze_block (spec.md §6.2, §6.4).
// The request must be multipart/form-data with three parts: blk, rev,
// xor.
func (h *Handler) AnalyzeBlock(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	blkBuf, err := readMultipartFile(r, "blk")
	if err != nil {
		h.writeError(w, err)
		metrics.ObserveAnalyzer("block", err, started)
		return
	}
	revBuf, err := readMultipartFile(r, "rev")
	if err != nil {
		h.writeError(w, err)
		metrics.ObserveAnalyzer("block", err, started)
		return
	}
	xorBuf, err := readMultipartFile(r, "xor")
	if err != nil {
		h.writeError(w, err)
		metrics.ObserveAnalyzer("block", err, started)
		return
	}

	result, err := analyzer.AnalyzeBlockFile(blkBuf, revBuf, xorBuf, false)
	metrics.ObserveAnalyzer("block", err, started)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Health implements GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func readMultipartFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, apierr.Wrapf(apierr.CodeInvalidFixture, err, "read %s part", field)
	}
	defer file.Close()
	buf, err := io.ReadAll(file)
	if err != nil {
		return nil, apierr.Wrapf(apierr.CodeInvalidFixture, err, "read %s part", field)
	}
	return buf, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	envelope := apierr.AsEnvelope(err)
	status := http.StatusBadRequest
	if envelope.Error.Code == string(apierr.CodeInternal) {
		status = http.StatusInternalServerError
		h.logger.Error("internal error", zap.Error(err))
	}
	h.writeJSON(w, status, envelope)
}
