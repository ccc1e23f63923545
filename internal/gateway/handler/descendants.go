package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/repository/nonnative"
)

// DescendantsService is the cache-aware resolver behind the endpoints.
type DescendantsService interface {
	Resolve(ctx context.Context, codingSystem string, codes []string) (descendants.Descendants, error)
	ResolveMany(ctx context.Context, codesByCodingSystem map[string][]string) (map[string]descendants.Descendants, error)
	Evict(ctx context.Context, n int) (int, error)
	Len(ctx context.Context) (int, error)
}

// VocabularyLister lists the non-native vocabularies.
type VocabularyLister interface {
	Vocabularies(ctx context.Context) ([]nonnative.Vocabulary, error)
}

type DescendantsHandler struct {
	svc    DescendantsService
	vocabs VocabularyLister
	logger logrus.FieldLogger
}

func NewDescendantsHandler(svc DescendantsService, vocabs VocabularyLister, logger logrus.FieldLogger) *DescendantsHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DescendantsHandler{svc: svc, vocabs: vocabs, logger: logger}
}

// HandleDescendants serves GET ?codingSystem=X&codes=a&codes=b for one
// coding system and POST {"X": ["a", "b"]} for several.
func (h *DescendantsHandler) HandleDescendants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getDescendants(w, r)
	case http.MethodPost:
		h.postDescendants(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *DescendantsHandler) getDescendants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	codingSystem := strings.TrimSpace(q.Get("codingSystem"))
	if codingSystem == "" {
		h.writeError(w, r, fmt.Errorf("%w: codingSystem is required", descendants.ErrInvalidArgument))
		return
	}
	res, err := h.svc.Resolve(r.Context(), codingSystem, splitCodes(q["codes"]))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DescendantsHandler) postDescendants(w http.ResponseWriter, r *http.Request) {
	var in map[string][]string
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid json body", descendants.ErrInvalidArgument))
		return
	}
	req := make(map[string][]string, len(in))
	for system, codes := range in {
		system = strings.TrimSpace(system)
		if system == "" {
			h.writeError(w, r, fmt.Errorf("%w: empty coding system", descendants.ErrInvalidArgument))
			return
		}
		req[system] = append(req[system], splitCodes(codes)...)
	}
	res, err := h.svc.ResolveMany(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleEvict serves POST ?n=N and removes the N oldest cache entries.
func (h *DescendantsHandler) HandleEvict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("n")))
	if err != nil || n < 0 {
		h.writeError(w, r, fmt.Errorf("%w: n must be a non-negative integer", descendants.ErrInvalidArgument))
		return
	}
	removed, err := h.svc.Evict(r.Context(), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	remaining, err := h.svc.Len(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed, "remaining": remaining})
}

func (h *DescendantsHandler) HandleVocabularies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.vocabs == nil {
		writeJSON(w, http.StatusOK, []nonnative.Vocabulary{})
		return
	}
	vocs, err := h.vocabs.Vocabularies(r.Context())
	if err != nil {
		h.writeError(w, r, descendants.DataAccess("query non-native vocabularies", err))
		return
	}
	if vocs == nil {
		vocs = []nonnative.Vocabulary{}
	}
	writeJSON(w, http.StatusOK, vocs)
}

func (h *DescendantsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, descendants.ErrInvalidArgument) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).WithError(err).Error("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// splitCodes accepts repeated values and comma separated lists.
func splitCodes(values []string) []string {
	var out []string
	for _, v := range values {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
