package server

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/handler"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/middleware"
)

func NewMux(
	descendantsHandler *handler.DescendantsHandler,
	metricsHandler http.Handler,
	logger logrus.FieldLogger,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/descendants", descendantsHandler.HandleDescendants)
	mux.HandleFunc("/vocabularies/non-native", descendantsHandler.HandleVocabularies)

	// Admin
	mux.HandleFunc("/admin/descendants-cache/evict", descendantsHandler.HandleEvict)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	// Middleware
	return middleware.CORS(middleware.RequestLogger(logger)(mux))
}
