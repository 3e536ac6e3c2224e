package engine

import (
	"fmt"

	"github.com/shaiso/Weave/internal/domain"
)

// Inputs — значения, связанные с портами узла (порт → значение).
//
// Для многозначных портов (images) значение — []any в порядке рёбер.
type Inputs map[string]any

// Has возвращает true, если порт связан.
func (in Inputs) Has(port string) bool {
	_, ok := in[port]
	return ok
}

// String возвращает значение порта как строку.
// Второе значение false, если порт не связан или значение пустое.
func (in Inputs) String(port string) (string, bool) {
	v, ok := in[port]
	if !ok || v == nil {
		return "", false
	}
	s := stringify(v)
	return s, s != ""
}

// Strings возвращает непустые строковые значения порта.
// Одиночное значение возвращается как слайс из одного элемента.
func (in Inputs) Strings(port string) []string {
	v, ok := in[port]
	if !ok || v == nil {
		return nil
	}

	values, isList := v.([]any)
	if !isList {
		values = []any{v}
	}

	out := make([]string, 0, len(values))
	for _, item := range values {
		if item == nil {
			continue
		}
		if s := stringify(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// First возвращает первое непустое строковое значение среди портов.
func (in Inputs) First(ports ...string) (string, bool) {
	for _, port := range ports {
		if s, ok := in.String(port); ok {
			return s, true
		}
	}
	return "", false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bind собирает входы узла из результатов уже выполненных узлов.
//
// Для каждого ребра, входящего в nodeID, берётся prior[edge.Source];
// если источник не дал результата (упал или не выполнялся), порт
// остаётся несвязанным. Порт ребра приводится к каноническому имени,
// пустой порт становится DefaultPort.
func Bind(nodeID string, edges []domain.Edge, prior map[string]any) Inputs {
	inputs := make(Inputs)

	for _, edge := range edges {
		if edge.Target != nodeID {
			continue
		}

		value, ok := prior[edge.Source]
		if !ok {
			continue
		}

		port := CanonicalPort(edge.TargetPort)
		if IsMultiPort(port) {
			list, _ := inputs[port].([]any)
			inputs[port] = append(list, value)
			continue
		}
		inputs[port] = value
	}

	return inputs
}

// CountEdges возвращает количество рёбер, входящих в любой из ports.
// Порты рёбер приводятся к каноническому имени.
func CountEdges(edges []domain.Edge, ports ...string) int {
	n := 0
	for _, edge := range edges {
		port := CanonicalPort(edge.TargetPort)
		for _, p := range ports {
			if port == p {
				n++
				break
			}
		}
	}
	return n
}
