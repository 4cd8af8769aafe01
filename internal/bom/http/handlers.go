package bomhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/daesung-metal/erp/internal/bom"
	"github.com/daesung-metal/erp/internal/platform/httpx"
)

const requestTimeout = 10 * time.Second

// ScanReader loads the latest stored integrity scan.
type ScanReader interface {
	Latest(ctx context.Context) (bom.ScanReport, error)
}

// ScanEnqueuer schedules an asynchronous integrity scan and returns the task id.
type ScanEnqueuer interface {
	EnqueueBOMScan(ctx context.Context) (string, error)
}

// Limits bounds caller supplied parameters.
type Limits struct {
	DefaultMaxLevel  int
	BatchLimit       int
	BatchConcurrency int
	// RatePerMinute throttles the batch and scan trigger endpoints. Zero disables it.
	RatePerMinute int
}

func (l Limits) normalized() Limits {
	if l.DefaultMaxLevel <= 0 || l.DefaultMaxLevel > MaxLevelLimit {
		l.DefaultMaxLevel = 10
	}
	if l.BatchLimit <= 0 {
		l.BatchLimit = 100
	}
	if l.BatchConcurrency <= 0 {
		l.BatchConcurrency = 4
	}
	return l
}

// Handler serves the BOM explosion API.
type Handler struct {
	logger    *slog.Logger
	service   *bom.Service
	scans     ScanReader
	enqueuer  ScanEnqueuer
	validator *validator.Validate
	limits    Limits
}

// NewHandler constructs the BOM HTTP handler. scans and enqueuer may be nil,
// in which case the integrity endpoints answer 503.
func NewHandler(logger *slog.Logger, service *bom.Service, scans ScanReader, enqueuer ScanEnqueuer, limits Limits) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		scans:     scans,
		enqueuer:  enqueuer,
		validator: validator.New(),
		limits:    limits.normalized(),
	}
}

type explodeSummary struct {
	TotalItems      int                `json:"total_items"`
	MaxLevelReached int                `json:"max_level_reached"`
	TotalCost       float64            `json:"total_cost"`
	FormattedCost   string             `json:"formatted_cost"`
	Warnings        []bom.CycleWarning `json:"warnings,omitempty"`
}

type levelSummaryTotals struct {
	TotalLevels int     `json:"total_levels"`
	TotalItems  int     `json:"total_items"`
	TotalCost   float64 `json:"total_cost"`
}

type whereUsedSummary struct {
	ChildItemID  int64 `json:"child_item_id"`
	TotalParents int   `json:"total_parents"`
}

type treeSummary struct {
	Warnings []bom.CycleWarning `json:"warnings,omitempty"`
}

func (h *Handler) handleExplode(w http.ResponseWriter, r *http.Request) {
	q, err := parseExplodeQuery(r.URL.Query(), h.limits.DefaultMaxLevel)
	if err == nil {
		err = q.check(h.validator)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	target := q.ParentItemID
	if Mode(q.Type) == ModeWhereUsed {
		target = q.ChildItemID
	}
	data, summary, err := h.run(ctx, Mode(q.Type), target, q.MaxLevel, q.IncludeInactive)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, data, summary)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, "요청 본문을 해석할 수 없습니다", err.Error())
		return
	}
	if err := req.check(h.validator, h.limits.BatchLimit); err != nil {
		h.respondError(w, err)
		return
	}
	mode := Mode(req.Type)
	if mode == "" {
		mode = ModeExplode
	}
	level := req.MaxLevel
	if level == 0 {
		level = h.limits.DefaultMaxLevel
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results := make([]batchResult, len(req.ItemIDs))
	g := new(errgroup.Group)
	g.SetLimit(h.limits.BatchConcurrency)
	for i, id := range req.ItemIDs {
		i, id := i, id
		g.Go(func() error {
			data, summary, err := h.run(ctx, mode, id, level, req.IncludeInactive)
			if err != nil {
				message, _ := h.describe(err)
				results[i] = batchResult{ItemID: id, Error: message}
				return nil
			}
			results[i] = batchResult{ItemID: id, Success: true, Data: data, Summary: summary}
			return nil
		})
	}
	_ = g.Wait()

	totals := batchSummary{Total: len(results)}
	for _, res := range results {
		if res.Success {
			totals.Succeeded++
		} else {
			totals.Failed++
		}
	}
	httpx.Success(w, http.StatusOK, results, totals)
}

func (h *Handler) handleExplosion(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "parent_item_id")
	rootID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || rootID <= 0 {
		h.respondError(w, invalid("유효하지 않은 상위 품목 ID 입니다: %s", raw))
		return
	}
	depth, err := parseMaxDepth(r.URL.Query().Get("max_depth"), h.limits.DefaultMaxLevel)
	if err != nil {
		h.respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.ExplosionReport(ctx, rootID, depth)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, report, nil)
}

func (h *Handler) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		httpx.Failure(w, http.StatusServiceUnavailable, "무결성 검사 저장소가 설정되지 않았습니다", "")
		return
	}
	report, err := h.scans.Latest(r.Context())
	if errors.Is(err, bom.ErrNoScan) {
		httpx.Failure(w, http.StatusNotFound, "저장된 BOM 무결성 검사 결과가 없습니다", "")
		return
	}
	if err != nil {
		h.logger.Error("load bom scan", slog.Any("error", err))
		httpx.Failure(w, http.StatusInternalServerError, "무결성 검사 결과를 불러오지 못했습니다", err.Error())
		return
	}
	httpx.Success(w, http.StatusOK, report, nil)
}

func (h *Handler) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Failure(w, http.StatusServiceUnavailable, "작업 큐가 설정되지 않았습니다", "")
		return
	}
	taskID, err := h.enqueuer.EnqueueBOMScan(r.Context())
	if err != nil {
		h.logger.Error("enqueue bom scan", slog.Any("error", err))
		httpx.Failure(w, http.StatusInternalServerError, "무결성 검사 작업을 등록하지 못했습니다", err.Error())
		return
	}
	httpx.Success(w, http.StatusAccepted, map[string]string{"task_id": taskID}, nil)
}

// run dispatches one operation. id is the root item, or the child item for
// where-used.
func (h *Handler) run(ctx context.Context, mode Mode, id int64, maxLevel int, includeInactive bool) (any, any, error) {
	switch mode {
	case ModeExplode, "":
		out, err := h.service.Explode(ctx, id, maxLevel)
		if err != nil {
			return nil, nil, err
		}
		flat := bom.Flatten(out.Nodes)
		totals := bom.Totals(flat)
		if err := bom.CheckTotal(totals.TotalCost); err != nil {
			return nil, nil, err
		}
		return out.Nodes, explodeSummary{
			TotalItems:      totals.TotalComponents,
			MaxLevelReached: totals.MaxDepthReached,
			TotalCost:       totals.TotalCost,
			FormattedCost:   totals.FormattedCost,
			Warnings:        out.Warnings,
		}, nil
	case ModeTree:
		tree, warnings, err := h.service.Tree(ctx, id, includeInactive, maxLevel)
		if err != nil {
			return nil, nil, err
		}
		if tree == nil {
			return nil, nil, errors.Join(bom.ErrNotFound, errors.New("BOM 구조를 찾을 수 없습니다"))
		}
		return tree, treeSummary{Warnings: warnings}, nil
	case ModeCost:
		out, err := h.service.TotalCost(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return out, nil, nil
	case ModeSummary:
		levels, err := h.service.LevelSummary(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		totals := levelSummaryTotals{TotalLevels: len(levels)}
		for _, l := range levels {
			totals.TotalItems += l.ItemCount
			totals.TotalCost += l.LevelCost
		}
		if err := bom.CheckTotal(totals.TotalCost); err != nil {
			return nil, nil, err
		}
		return levels, totals, nil
	case ModeWhereUsed:
		parents, err := h.service.WhereUsed(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return parents, whereUsedSummary{ChildItemID: id, TotalParents: len(parents)}, nil
	case ModeValidate:
		out, err := h.service.Validate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return out, nil, nil
	}
	return nil, nil, invalid("지원하지 않는 조회 유형입니다: %s", mode)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	message, status := h.describe(err)
	details := ""
	if status == http.StatusInternalServerError {
		details = err.Error()
	}
	httpx.Failure(w, status, message, details)
}

// describe maps err to a user facing message and status code.
func (h *Handler) describe(err error) (string, int) {
	status := httpx.Classify(err, []error{bom.ErrNotFound}, []error{bom.ErrValidation})
	switch {
	case status == http.StatusBadRequest:
		return userMessage(err, bom.ErrValidation), status
	case status == http.StatusNotFound:
		return "품목 또는 BOM 구조를 찾을 수 없습니다", status
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("bom request timed out", slog.Any("error", err))
		return "BOM 조회 시간이 초과되었습니다", http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return "요청이 취소되었습니다", status
	}
	h.logger.Error("bom request failed", slog.Any("error", err))
	return "BOM 데이터를 처리하는 중 오류가 발생했습니다", status
}

// userMessage strips the sentinel prefix added by invalid.
func userMessage(err, sentinel error) string {
	msg := err.Error()
	if trimmed, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return trimmed
	}
	return msg
}
