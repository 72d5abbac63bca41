package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/cmd/bidd/admission"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	LogName = "http-api"

	maxBodySize = 64 * 1024

	requestIDHeader = "X-Request-Id"
)

var (
	log = logging.Logger(LogName)
)

// Admitter admits signed bids.
type Admitter interface {
	Admit(ctx context.Context, body []byte) (admission.Result, error)
}

// Response is the body of every bids endpoint response. Exactly one of ID and Error is
// set, except for preflight requests where none is.
type Response struct {
	ID    *string `json:"id"`
	CID   *string `json:"cid"`
	Error *string `json:"error"`
}

// NewServer starts serving the API on listenAddr.
func NewServer(listenAddr string, a Admitter) (*http.Server, error) {
	httpServer := &http.Server{
		Addr:              listenAddr,
		ReadHeaderTimeout: time.Second * 5,
		WriteTimeout:      time.Second * 30,
		Handler:           NewHandler(a),
	}

	log.Infof("running http api on %s", listenAddr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("stopping http server: %s", err)
		}
	}()

	return httpServer, nil
}

// NewHandler returns the API handler. It's also what runs under AWS Lambda.
func NewHandler(a Admitter) http.Handler {
	return createMux(a)
}

func createMux(a Admitter) *http.ServeMux {
	mux := http.NewServeMux()

	bids := otelhttp.NewHandler(http.HandlerFunc(bidsHandler(a)), "bids")
	mux.Handle("/", bids)
	mux.Handle("/bids", bids)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func bidsHandler(a Admitter) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		h := w.Header()
		h.Set(requestIDHeader, reqID)
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "PUT,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "content-type")

		switch r.Method {
		case http.MethodOptions:
			writeResponse(w, http.StatusOK, Response{})
		case http.MethodPut:
			putBid(w, r, a, reqID)
		default:
			httpError(w, reqID, "Method not implemented", http.StatusNotImplemented)
		}
	}
}

func putBid(w http.ResponseWriter, r *http.Request, a Admitter, reqID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, reqID, fmt.Sprintf("Request body is larger than %s", humanize.IBytes(maxBodySize)), http.StatusBadRequest)
			return
		}
		httpError(w, reqID, fmt.Sprintf("reading body: %s", err), http.StatusBadRequest)
		return
	}

	res, err := a.Admit(r.Context(), body)
	if err != nil {
		msg := err.Error()
		var admErr *admission.Error
		if errors.As(err, &admErr) {
			msg = admErr.Msg
		}
		httpError(w, reqID, msg, statusCode(admission.KindOf(err)))
		return
	}

	id := res.ID
	resp := Response{ID: &id}
	if res.CID.Defined() {
		c := res.CID.String()
		resp.CID = &c
	}
	log.Debugf("request %s admitted bid %s", reqID, id)
	writeResponse(w, http.StatusOK, resp)
}

func statusCode(k admission.Kind) int {
	switch k {
	case admission.MalformedRequest,
		admission.SchemaValidation,
		admission.FieldParse,
		admission.SignatureInvalid,
		admission.SignatureMismatch,
		admission.BusinessRuleViolation:
		return http.StatusBadRequest
	case admission.Unauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("writing response: %s", err)
	}
}

func httpError(w http.ResponseWriter, reqID, msg string, status int) {
	if status == http.StatusInternalServerError {
		log.Errorf("request %s error: %s", reqID, msg)
	} else {
		log.Debugf("request %s rejected: %s", reqID, msg)
	}
	writeResponse(w, status, Response{Error: &msg})
}
