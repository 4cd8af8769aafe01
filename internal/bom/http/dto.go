package bomhttp

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/daesung-metal/erp/internal/bom"
)

// MaxLevelLimit is the deepest level a caller may request.
const MaxLevelLimit = 20

// Mode names the output shape requested from the explode endpoints.
type Mode string

const (
	ModeExplode   Mode = "explode"
	ModeTree      Mode = "tree"
	ModeCost      Mode = "cost"
	ModeSummary   Mode = "summary"
	ModeWhereUsed Mode = "where-used"
	ModeValidate  Mode = "validate"
)

type explodeQuery struct {
	ParentItemID    int64  `validate:"gte=0"`
	ChildItemID     int64  `validate:"gte=0"`
	Type            string `validate:"oneof=explode tree cost summary where-used validate"`
	MaxLevel        int    `validate:"gte=1,lte=20"`
	IncludeInactive bool
}

type batchRequest struct {
	ItemIDs         []int64 `json:"item_ids" validate:"required,min=1,dive,gt=0"`
	Type            string  `json:"type" validate:"omitempty,oneof=explode tree cost summary where-used validate"`
	MaxLevel        int     `json:"max_level" validate:"omitempty,gte=1,lte=20"`
	IncludeInactive bool    `json:"include_inactive"`
}

type batchResult struct {
	ItemID  int64  `json:"item_id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Summary any    `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

type batchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func parseExplodeQuery(values url.Values, defaultLevel int) (explodeQuery, error) {
	q := explodeQuery{
		Type:     strings.TrimSpace(values.Get("type")),
		MaxLevel: defaultLevel,
	}
	if q.Type == "" {
		q.Type = string(ModeExplode)
	}
	var err error
	if q.ParentItemID, err = parseID(values, "parent_item_id"); err != nil {
		return q, err
	}
	if q.ChildItemID, err = parseID(values, "child_item_id"); err != nil {
		return q, err
	}
	if raw := values.Get("max_level"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil {
			return q, invalid("max_level은 1에서 %d 사이의 정수여야 합니다", MaxLevelLimit)
		}
		q.MaxLevel = level
	}
	if raw := values.Get("include_inactive"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return q, invalid("include_inactive는 true 또는 false여야 합니다")
		}
		q.IncludeInactive = include
	}
	return q, nil
}

func parseID(values url.Values, name string) (int64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("유효하지 않은 %s 입니다: %s", name, raw)
	}
	return id, nil
}

func parseMaxDepth(raw string, defaultLevel int) (int, error) {
	if raw == "" {
		return defaultLevel, nil
	}
	depth, err := strconv.Atoi(raw)
	if err != nil || depth < 1 || depth > MaxLevelLimit {
		return 0, invalid("max_depth는 1에서 %d 사이여야 합니다", MaxLevelLimit)
	}
	return depth, nil
}

// check runs struct validation and the cross-field rules of a GET query.
func (q explodeQuery) check(v *validator.Validate) error {
	if err := v.Struct(q); err != nil {
		return translate(err, q.Type)
	}
	if Mode(q.Type) == ModeWhereUsed {
		if q.ChildItemID == 0 {
			return invalid("where-used 조회에는 child_item_id 파라미터가 필요합니다")
		}
		if q.ParentItemID != 0 && q.ParentItemID == q.ChildItemID {
			return invalid("상위 품목과 하위 품목이 같을 수 없습니다")
		}
		return nil
	}
	if q.ParentItemID == 0 {
		return invalid("parent_item_id 파라미터가 필요합니다")
	}
	return nil
}

func (b batchRequest) check(v *validator.Validate, limit int) error {
	if err := v.Struct(b); err != nil {
		return translate(err, b.Type)
	}
	if limit > 0 && len(b.ItemIDs) > limit {
		return invalid("한 번에 최대 %d개의 품목만 처리할 수 있습니다", limit)
	}
	return nil
}

func translate(err error, mode string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("요청 값이 올바르지 않습니다")
	}
	fieldErr := fieldErrs[0]
	// dive errors carry an index suffix such as ItemIDs[0].
	field, _, _ := strings.Cut(fieldErr.StructField(), "[")
	switch field {
	case "Type":
		return invalid("지원하지 않는 조회 유형입니다: %s", mode)
	case "MaxLevel":
		return invalid("max_level은 1에서 %d 사이여야 합니다", MaxLevelLimit)
	case "ItemIDs":
		if fieldErr.Tag() == "gt" {
			return invalid("item_ids에는 양의 정수만 사용할 수 있습니다")
		}
		return invalid("item_ids 배열이 필요합니다")
	case "ParentItemID", "ChildItemID":
		return invalid("품목 ID는 양의 정수여야 합니다")
	}
	return invalid("요청 값이 올바르지 않습니다")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", bom.ErrValidation, fmt.Sprintf(format, args...))
}
