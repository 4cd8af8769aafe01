package bom

import (
	"fmt"
	"strings"
)

// Inspect turns a traversal stream into a structural validation result.
// Cycles, self references, inactive or missing child items and non-positive
// quantities are each reported once per offending edge occurrence.
func Inspect(stream Stream) ValidationResult {
	result := ValidationResult{RootItemID: stream.Root.ID, Issues: []string{}}
	seen := make(map[string]struct{})
	add := func(issue string) {
		if _, ok := seen[issue]; ok {
			return
		}
		seen[issue] = struct{}{}
		result.Issues = append(result.Issues, issue)
	}

	for _, step := range stream.Steps {
		edge := step.Edge
		label := itemLabel(edge.ChildItemID, edge.Item)
		switch {
		case edge.ParentItemID == edge.ChildItemID:
			add(fmt.Sprintf("자기 참조 BOM: 품목 %s 이(가) 자기 자신을 하위 품목으로 가집니다 (BOM #%d)", label, edge.ID))
		case edge.ItemMissing:
			add(fmt.Sprintf("존재하지 않는 품목 참조: 품목 ID %d (BOM #%d)", edge.ChildItemID, edge.ID))
		case !edge.Item.IsActive:
			add(fmt.Sprintf("비활성 품목 참조: %s (경로: %s)", label, step.Node.Path))
		}
		if edge.QuantityRequired <= 0 {
			add(fmt.Sprintf("소요량 오류: %s 의 소요량이 %g 입니다 (BOM #%d)", label, edge.QuantityRequired, edge.ID))
		}
	}
	for _, warning := range stream.Warnings {
		if warning.ParentItemID == warning.ItemID {
			continue
		}
		add(fmt.Sprintf("순환 참조 감지: %s", cycleLabel(warning)))
	}

	result.IsValid = len(result.Issues) == 0
	return result
}

func itemLabel(id int64, item Item) string {
	if item.Code == "" {
		return fmt.Sprintf("#%d", id)
	}
	return item.Code
}

func cycleLabel(w CycleWarning) string {
	if w.Breadcrumb != "" {
		return w.Breadcrumb
	}
	parts := make([]string, len(w.Path))
	for i, id := range w.Path {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, PathSeparator)
}
