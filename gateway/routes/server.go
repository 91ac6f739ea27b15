package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core"
	"nftlend/gateway/middleware"
	"nftlend/indexer"
)

// EventIndex serves committed event history.
type EventIndex interface {
	EventsForLoan(ctx context.Context, loanID uint64) ([]indexer.EventRecord, error)
	EventsOfType(ctx context.Context, eventType string, limit int) ([]indexer.EventRecord, error)
	RecentEvents(ctx context.Context, limit int) ([]indexer.EventRecord, error)
}

// prepared is a decoded request ready to run inside one node operation.
type prepared func() (interface{}, error)

type server struct {
	node   *core.Node
	index  EventIndex
	logger *slog.Logger
}

// mutate decodes the request outside the node lock and runs the prepared
// operation atomically.
func (s *server) mutate(op string, prepare func(r *http.Request, actor ethcommon.Address) (prepared, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		run, err := prepare(r, actor)
		if err != nil {
			s.writeError(w, r, op, err)
			return
		}
		var out interface{}
		err = s.node.Execute(op, func() error {
			var err error
			out, err = run()
			return err
		})
		if err != nil {
			s.writeError(w, r, op, err)
			return
		}
		s.logger.Info("operation committed", "op", op, "actor", actor.Hex(), "requestid", middleware.RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusOK, out)
	}
}

// query runs fn against committed state.
func (s *server) query(op string, fn func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out interface{}
		err := s.node.View(func() error {
			var err error
			out, err = fn(r)
			return err
		})
		if err != nil {
			s.writeError(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	requestID := middleware.RequestIDFrom(r.Context())
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("operation failed", "op", op, "requestid", requestID, "error", err)
	} else {
		s.logger.Debug("operation rejected", "op", op, "requestid", requestID, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code, RequestID: requestID})
}

type eventView struct {
	ID            string            `json:"id"`
	Seq           uint64            `json:"seq"`
	Type          string            `json:"type"`
	Contract      string            `json:"contract,omitempty"`
	LoanID        *uint64           `json:"loanId,omitempty"`
	RelatedLoanID *uint64           `json:"relatedLoanId,omitempty"`
	Attributes    map[string]string `json:"attributes"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func eventViews(records []indexer.EventRecord) ([]eventView, error) {
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.Attrs()
		if err != nil {
			return nil, err
		}
		out = append(out, eventView{
			ID:            rec.ID.String(),
			Seq:           rec.Seq,
			Type:          rec.Type,
			Contract:      rec.Contract,
			LoanID:        rec.LoanID,
			RelatedLoanID: rec.RelatedLoanID,
			Attributes:    attrs,
			CreatedAt:     rec.CreatedAt,
		})
	}
	return out, nil
}

func (s *server) loanEvents(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, r, "events", errIndexUnavailable)
		return
	}
	loanID, err := loanIDParam(r)
	if err != nil {
		s.writeError(w, r, "events", err)
		return
	}
	records, err := s.index.EventsForLoan(r.Context(), loanID)
	s.writeEvents(w, r, records, err)
}

func (s *server) recentEvents(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, r, "events", errIndexUnavailable)
		return
	}
	var records []indexer.EventRecord
	var err error
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		records, err = s.index.EventsOfType(r.Context(), eventType, limitParam(r))
	} else {
		records, err = s.index.RecentEvents(r.Context(), limitParam(r))
	}
	s.writeEvents(w, r, records, err)
}

func (s *server) writeEvents(w http.ResponseWriter, r *http.Request, records []indexer.EventRecord, err error) {
	if err != nil {
		s.writeError(w, r, "events", err)
		return
	}
	views, err := eventViews(records)
	if err != nil {
		s.writeError(w, r, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": views})
}
