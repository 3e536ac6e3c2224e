package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

// Context — контекст для рендеринга шаблона промпта.
//
// В шаблоне доступны входы узла по имени порта:
//   - {{ .Inputs.input }}
//   - {{ .Inputs.systemPrompt }}
//   - {{ index .Inputs "images" }}
type Context struct {
	// Inputs — значения, связанные с портами узла.
	Inputs Inputs `json:"inputs"`
}

// NewContext создаёт контекст из связанных входов узла.
func NewContext(inputs Inputs) *Context {
	if inputs == nil {
		inputs = make(Inputs)
	}
	return &Context{Inputs: inputs}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	"join":  func(sep string, items []string) string { return strings.Join(items, sep) },
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// Render рендерит строковый шаблон с контекстом.
//
// Строка без "{{" возвращается как есть, поэтому обычный текст промпта
// не требует экранирования. Несвязанный порт, на который ссылается
// шаблон, рендерится пустой строкой.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	if ctx == nil {
		ctx = NewContext(nil)
	}

	t, err := template.New("prompt").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	ports := make(map[string]bool)
	for _, tt := range t.Templates() {
		if tt.Tree != nil {
			referencedPorts(tt.Tree.Root, ports)
		}
	}

	data := &Context{Inputs: make(Inputs, len(ctx.Inputs)+len(ports))}
	for k, v := range ctx.Inputs {
		data.Inputs[k] = v
	}
	for port := range ports {
		if data.Inputs[port] == nil {
			data.Inputs[port] = ""
		}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderPrompt рендерит шаблон промпта LLM-узла над его входами.
//
// Промпт, который не разбирается как шаблон (например, содержит "{{"
// как обычный текст), возвращается без изменений.
func RenderPrompt(tmpl string, inputs Inputs) (string, error) {
	out, err := Render(tmpl, NewContext(inputs))
	if errors.Is(err, ErrTemplateParse) {
		return tmpl, nil
	}
	return out, err
}

// referencedPorts собирает порты, на которые ссылается шаблон:
// .Inputs.port и index .Inputs "port".
func referencedPorts(node parse.Node, ports map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			referencedPorts(child, ports)
		}
	case *parse.ActionNode:
		referencedPorts(n.Pipe, ports)
	case *parse.IfNode:
		referencedBranch(&n.BranchNode, ports)
	case *parse.RangeNode:
		referencedBranch(&n.BranchNode, ports)
	case *parse.WithNode:
		referencedBranch(&n.BranchNode, ports)
	case *parse.TemplateNode:
		referencedPorts(n.Pipe, ports)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			referencedPorts(cmd, ports)
		}
	case *parse.CommandNode:
		for i, arg := range n.Args {
			if f, ok := arg.(*parse.FieldNode); ok && len(f.Ident) == 1 && f.Ident[0] == "Inputs" && i+1 < len(n.Args) {
				if s, ok := n.Args[i+1].(*parse.StringNode); ok {
					ports[s.Text] = true
				}
			}
			referencedPorts(arg, ports)
		}
	case *parse.FieldNode:
		if len(n.Ident) >= 2 && n.Ident[0] == "Inputs" {
			ports[n.Ident[1]] = true
		}
	}
}

func referencedBranch(b *parse.BranchNode, ports map[string]bool) {
	referencedPorts(b.Pipe, ports)
	referencedPorts(b.List, ports)
	referencedPorts(b.ElseList, ports)
}
