package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const maxValueWidth = 60

// nodeResultRows формирует строки таблицы результатов узлов.
func nodeResultRows(results []NodeResultResponse) [][]string {
	rows := make([][]string, len(results))
	for i, r := range results {
		detail := r.ErrorMessage
		if detail == "" {
			detail = formatValue(r.Outputs["result"])
		}
		if r.Warning != "" {
			detail += " (" + r.Warning + ")"
		}
		rows[i] = []string{
			r.NodeID,
			r.NodeType,
			r.Status,
			strconv.FormatInt(r.Duration, 10) + "ms",
			detail,
		}
	}
	return rows
}

var nodeResultHeaders = []string{"NODE", "TYPE", "STATUS", "DURATION", "RESULT"}

// formatValue превращает результат узла в однострочный текст для таблицы.
func formatValue(v any) string {
	if v == nil {
		return ""
	}
	s := strings.Join(strings.Fields(fmt.Sprint(v)), " ")
	if len(s) > maxValueWidth {
		s = s[:maxValueWidth-3] + "..."
	}
	return s
}

// countItems возвращает длину JSON массива (0 для не-массива).
func countItems(raw []byte) int {
	return int(gjson.GetBytes(raw, "#").Int())
}
