package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/engine"
	"github.com/shaiso/Weave/internal/telemetry"
)

func TestExecute_TextOutputsValue(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{text("t", "hello")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)
	require.Len(t, res.NodeResults, 1)

	out, ok := res.NodeResults[0].Output()
	require.True(t, ok)
	require.Equal(t, "hello", out)
}

func TestExecute_LLMReceivesBoundUserMessage(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{text("t", "ping"), llm("l", "")},
		Edges: []domain.Edge{wire("t", "l", "userMessage")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)

	require.Equal(t, 1, f.llm.calls())
	require.Equal(t, "ping", f.llm.requests[0].UserMessage)
	require.Equal(t, domain.DefaultLLMModel, f.llm.requests[0].Model)

	nr, ok := res.Result("l")
	require.True(t, ok)
	require.Equal(t, "echo: ping", nr.Outputs[domain.OutputKey])
	require.Equal(t, "ping", nr.Inputs[engine.PortUserMessage])
}

func TestExecute_LLMPromptSources(t *testing.T) {
	tests := []struct {
		name       string
		graph      *domain.Graph
		wantUser   string
		wantSystem string
	}{
		{
			name:     "static prompt",
			graph:    &domain.Graph{Nodes: []domain.Node{llm("l", "write a haiku")}},
			wantUser: "write a haiku",
		},
		{
			name: "default port overrides static prompt",
			graph: &domain.Graph{
				Nodes: []domain.Node{text("t", "from edge"), llm("l", "static")},
				Edges: []domain.Edge{wire("t", "l", "")},
			},
			wantUser: "from edge",
		},
		{
			name: "legacy handles",
			graph: &domain.Graph{
				Nodes: []domain.Node{text("s", "be brief"), text("u", "hi"), llm("l", "")},
				Edges: []domain.Edge{wire("s", "l", "system_prompt"), wire("u", "l", "user_message")},
			},
			wantUser:   "hi",
			wantSystem: "be brief",
		},
		{
			name: "template over bound ports",
			graph: &domain.Graph{
				Nodes: []domain.Node{text("s", "pirate"), llm("l", "talk like a {{ .Inputs.systemPrompt }}")},
				Edges: []domain.Edge{wire("s", "l", "systemPrompt")},
			},
			wantUser:   "talk like a pirate",
			wantSystem: "pirate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			res, err := f.runner.Execute(context.Background(), tt.graph)
			require.NoError(t, err)
			require.Equal(t, domain.RunStatusSuccess, res.Status)
			require.Equal(t, 1, f.llm.calls())
			require.Equal(t, tt.wantUser, f.llm.requests[0].UserMessage)
			require.Equal(t, tt.wantSystem, f.llm.requests[0].SystemPrompt)
		})
	}
}

func TestExecute_LLMWithImagesOnly(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{image("i1", "https://cdn/1.png"), image("i2", "https://cdn/2.png"), llm("l", "")},
		Edges: []domain.Edge{wire("i1", "l", "images"), wire("i2", "l", "images")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)
	require.Equal(t, []string{"https://cdn/1.png", "https://cdn/2.png"}, f.llm.requests[0].ImageURLs)
}

func TestExecute_LLMMissingPrompt(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{llm("l", "  ")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFailed, res.Status)
	require.Equal(t, 0, f.llm.calls())
	require.Contains(t, res.NodeResults[0].ErrorMessage, "no prompt provided")
}

func TestExecute_InferenceErrorIsClassified(t *testing.T) {
	f := newFixture()
	f.llm.err = errors.New("googleapi: Error 400: API_KEY_INVALID")

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{llm("l", "hi"), text("t", "still runs")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPartial, res.Status)

	nr, _ := res.Result("l")
	require.Equal(t, domain.NodeStatusFailed, nr.Status)
	require.Contains(t, nr.ErrorMessage, "invalid credentials")

	other, _ := res.Result("t")
	require.Equal(t, domain.NodeStatusSuccess, other.Status)
}

func TestExecute_CropWrongPortScenario(t *testing.T) {
	// Text("a") → LLM → Crop, но ребро в crop идёт не в порт изображения
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{text("a", "a"), llm("l", ""), crop("c", domain.CropConfig{Width: 10, Height: 10})},
		Edges: []domain.Edge{wire("a", "l", ""), wire("l", "c", "mask")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPartial, res.Status)
	require.Equal(t, []string{"a", "l", "c"}, resultIDs(res))

	require.Equal(t, domain.NodeStatusSuccess, res.NodeResults[0].Status)
	require.Equal(t, domain.NodeStatusSuccess, res.NodeResults[1].Status)
	require.Equal(t, domain.NodeStatusFailed, res.NodeResults[2].Status)
	require.Contains(t, res.NodeResults[2].ErrorMessage, "missing required input")
	require.Empty(t, f.crop.requests)
}

func TestExecute_CropMissingInputSiblingsUnaffected(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{crop("c", domain.CropConfig{}), text("t", "x"), image("i", "https://cdn/a.png")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPartial, res.Status)

	c, _ := res.Result("c")
	require.Equal(t, domain.NodeStatusFailed, c.Status)
	require.Equal(t, []domain.NodeStatus{domain.NodeStatusPending, domain.NodeStatusRunning, domain.NodeStatusFailed}, f.observer.forNode("c"))

	for _, id := range []string{"t", "i"} {
		nr, _ := res.Result(id)
		require.Equal(t, domain.NodeStatusSuccess, nr.Status, id)
		require.Equal(t, []domain.NodeStatus{domain.NodeStatusPending, domain.NodeStatusRunning, domain.NodeStatusSuccess}, f.observer.forNode(id))
	}
}

func TestExecute_CropClampsRectangle(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{image("i", "https://cdn/a.png"), crop("c", domain.CropConfig{X: -5, Y: 3, Width: 0, Height: -2})},
		Edges: []domain.Edge{wire("i", "c", "image")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)
	require.Equal(t, CropRequest{ImageURL: "https://cdn/a.png", X: 0, Y: 3, Width: 1, Height: 1}, f.crop.requests[0])

	nr, _ := res.Result("c")
	require.Equal(t, "https://cdn/a.png#cropped", nr.Outputs[domain.OutputKey])
}

func TestExecute_ProcessingFailureCascades(t *testing.T) {
	f := newFixture()
	f.crop.err = errors.New("connection refused")

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{image("i", "https://cdn/a.png"), crop("c", domain.CropConfig{Width: 5, Height: 5}), llm("l", "")},
		Edges: []domain.Edge{wire("i", "c", ""), wire("c", "l", "images")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPartial, res.Status)

	c, _ := res.Result("c")
	require.Equal(t, domain.NodeStatusFailed, c.Status)
	require.Contains(t, c.ErrorMessage, "crop: connection refused")

	// зависимый узел падает сам, не вызывая модель
	l, _ := res.Result("l")
	require.Equal(t, domain.NodeStatusFailed, l.Status)
	require.Contains(t, l.ErrorMessage, "missing required input")
	require.Equal(t, 0, f.llm.calls())
}

func TestExecute_FrameClampWarning(t *testing.T) {
	tests := []struct {
		name        string
		timestamp   float64
		collabWarn  string
		wantWarning string
	}{
		{"within video", 3, "", ""},
		{"past the end", 12, "", "Timestamp 12s exceeds video duration (10.00s). Using last frame."},
		{"collaborator warning wins", 12, "clamped", "clamped"},
		{"negative", -1, "", "Timestamp -1s is negative. Using 0s instead."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.frames.warning = tt.collabWarn

			res, err := f.runner.Execute(context.Background(), &domain.Graph{
				Nodes: []domain.Node{video("v", "https://cdn/v.mp4"), frame("f", tt.timestamp)},
				Edges: []domain.Edge{wire("v", "f", "video")},
			})
			require.NoError(t, err)
			require.Equal(t, domain.RunStatusSuccess, res.Status)

			nr, _ := res.Result("f")
			require.Equal(t, tt.wantWarning, nr.Warning)
			require.Equal(t, "https://cdn/v.mp4#frame", nr.Outputs[domain.OutputKey])
		})
	}
}

func TestExecute_UploadWithoutURLFails(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{video("v", ""), frame("f", 1)},
		Edges: []domain.Edge{wire("v", "f", "")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFailed, res.Status)
	require.Empty(t, f.frames.requests)
}

func TestExecute_UnknownKind(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{{ID: "x", Kind: "sticker"}, text("t", "ok")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPartial, res.Status)

	nr, _ := res.Result("x")
	require.Contains(t, nr.ErrorMessage, `unknown node kind "sticker"`)
}

func TestExecute_CycleAbortsBeforeAnyNode(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{llm("a", "x"), llm("b", "y")},
		Edges: []domain.Edge{wire("a", "b", ""), wire("b", "a", "")},
	})
	require.Nil(t, res)

	var cycle *engine.CycleError
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, []string{"a", "b"}, cycle.Remaining)
	require.Equal(t, 0, f.llm.calls())
	require.Empty(t, f.observer.events)
}

func TestExecute_Idempotent(t *testing.T) {
	f := newFixture()
	g := &domain.Graph{
		Nodes: []domain.Node{
			text("t", "hello"),
			image("i", "https://cdn/a.png"),
			llm("l", ""),
			crop("c", domain.CropConfig{Width: 20, Height: 20}),
		},
		Edges: []domain.Edge{wire("t", "l", ""), wire("i", "l", "images"), wire("i", "c", "")},
	}

	first, err := f.runner.Execute(context.Background(), g)
	require.NoError(t, err)
	second, err := f.runner.Execute(context.Background(), g)
	require.NoError(t, err)

	require.Equal(t, resultIDs(first), resultIDs(second))
	for i := range first.NodeResults {
		require.Equal(t, first.NodeResults[i].Outputs, second.NodeResults[i].Outputs)
		require.NotEqual(t, first.NodeResults[i].ID, second.NodeResults[i].ID)
	}
}

func TestExecuteSubset(t *testing.T) {
	f := newFixture()
	g := &domain.Graph{
		Nodes: []domain.Node{text("t1", "one"), llm("l1", ""), text("t2", "two"), llm("l2", "")},
		Edges: []domain.Edge{wire("t1", "l1", ""), wire("t2", "l2", "")},
	}

	res, err := f.runner.ExecuteSubset(context.Background(), g, []string{"l2"})
	require.NoError(t, err)
	require.Equal(t, []string{"t2", "l2"}, resultIDs(res))
	require.Equal(t, 1, f.llm.calls())
	require.Empty(t, f.observer.forNode("t1"))
}

func TestExecuteSubset_UnknownTarget(t *testing.T) {
	f := newFixture()

	res, err := f.runner.ExecuteSubset(context.Background(), &domain.Graph{Nodes: []domain.Node{text("t", "x")}}, []string{"missing"})
	require.Nil(t, res)
	require.ErrorIs(t, err, engine.ErrUnknownTarget)
}

func TestExecute_IndependentChainsOrder(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{text("text1", "a"), llm("llm1", ""), text("text2", "b"), llm("llm2", "")},
		Edges: []domain.Edge{wire("text1", "llm1", ""), wire("text2", "llm2", "")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"text1", "llm1", "text2", "llm2"}, resultIDs(res))
}

func TestExecute_EmptyGraph(t *testing.T) {
	res, err := newFixture().runner.Execute(context.Background(), &domain.Graph{})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)
	require.Empty(t, res.NodeResults)
}

func TestExecute_ContextCancelledMarksRemainingFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := New(Config{
		Logger: telemetry.Discard(),
		Observer: ObserverFunc(func(nodeID string, status domain.NodeStatus) {
			if nodeID == "a" && status == domain.NodeStatusSuccess {
				cancel()
			}
		}),
	})

	res, err := r.Execute(ctx, &domain.Graph{
		Nodes: []domain.Node{text("a", "1"), text("b", "2"), text("c", "3")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPartial, res.Status)

	for _, id := range []string{"b", "c"} {
		nr, _ := res.Result(id)
		require.Equal(t, domain.NodeStatusFailed, nr.Status)
		require.Contains(t, nr.ErrorMessage, context.Canceled.Error())
	}
}

func TestExecute_ObserverPanicIsContained(t *testing.T) {
	r := New(Config{
		Logger: telemetry.Discard(),
		Observer: ObserverFunc(func(string, domain.NodeStatus) {
			panic("ui went away")
		}),
	})

	res, err := r.Execute(context.Background(), &domain.Graph{Nodes: []domain.Node{text("t", "x")}})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)
}

func TestExecute_MissingCollaborator(t *testing.T) {
	r := New(Config{Logger: telemetry.Discard()})

	res, err := r.Execute(context.Background(), &domain.Graph{Nodes: []domain.Node{llm("l", "hi")}})
	require.NoError(t, err)

	nr, _ := res.Result("l")
	require.Equal(t, domain.NodeStatusFailed, nr.Status)
	require.Contains(t, nr.ErrorMessage, ErrNoInferencer.Error())
}

func TestExecute_Pacing(t *testing.T) {
	r := New(Config{Logger: telemetry.Discard(), Pacing: 20 * time.Millisecond})

	start := time.Now()
	_, err := r.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{text("a", "1"), text("b", "2"), text("c", "3")},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestExecute_SingleMediaInput(t *testing.T) {
	tests := []struct {
		name   string
		graph  *domain.Graph
		target string
	}{
		{
			name: "crop with image and default port",
			graph: &domain.Graph{
				Nodes: []domain.Node{image("a", "http://a.png"), image("b", "http://b.png"), crop("c", domain.CropConfig{Width: 10, Height: 10})},
				Edges: []domain.Edge{wire("a", "c", "image"), wire("b", "c", "")},
			},
			target: "c",
		},
		{
			name: "crop with failed second source",
			graph: &domain.Graph{
				Nodes: []domain.Node{image("a", "http://a.png"), image("b", ""), crop("c", domain.CropConfig{Width: 10, Height: 10})},
				Edges: []domain.Edge{wire("a", "c", "image"), wire("b", "c", "")},
			},
			target: "c",
		},
		{
			name: "frame with video and default port",
			graph: &domain.Graph{
				Nodes: []domain.Node{video("a", "http://a.mp4"), video("b", "http://b.mp4"), frame("f", 1)},
				Edges: []domain.Edge{wire("a", "f", "video"), wire("b", "f", "")},
			},
			target: "f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			res, err := f.runner.Execute(context.Background(), tt.graph)
			require.NoError(t, err)
			require.NotEqual(t, domain.RunStatusSuccess, res.Status)

			nr, ok := res.Result(tt.target)
			require.True(t, ok)
			require.Equal(t, domain.NodeStatusFailed, nr.Status)
			require.Contains(t, nr.ErrorMessage, "expected exactly one")
			require.Empty(t, f.crop.requests)
			require.Empty(t, f.frames.requests)
		})
	}
}

func TestExecute_KindConfigMismatch(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Execute(context.Background(), &domain.Graph{
		Nodes: []domain.Node{{ID: "x", Kind: domain.KindLLM, Config: domain.TextConfig{Value: "v"}}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFailed, res.Status)

	nr, _ := res.Result("x")
	require.Equal(t, domain.NodeStatusFailed, nr.Status)
	require.Contains(t, nr.ErrorMessage, `does not match config of kind "text"`)
	require.Empty(t, nr.Outputs)
	require.Equal(t, 0, f.llm.calls())
}

func TestExecuteSubset_EmptyTargetsRunsWholeGraph(t *testing.T) {
	f := newFixture()
	g := &domain.Graph{Nodes: []domain.Node{text("a", "1"), text("b", "2")}}

	res, err := f.runner.ExecuteSubset(context.Background(), g, nil)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSuccess, res.Status)
	require.Equal(t, []string{"a", "b"}, resultIDs(res))
}

func TestExecute_LLMPromptTemplateErrors(t *testing.T) {
	t.Run("unparsable prompt sent verbatim", func(t *testing.T) {
		f := newFixture()

		res, err := f.runner.Execute(context.Background(), &domain.Graph{
			Nodes: []domain.Node{llm("l", "what does {{ mean")},
		})
		require.NoError(t, err)
		require.Equal(t, domain.RunStatusSuccess, res.Status)
		require.Equal(t, "what does {{ mean", f.llm.requests[0].UserMessage)
	})

	t.Run("render failure fails node", func(t *testing.T) {
		f := newFixture()

		res, err := f.runner.Execute(context.Background(), &domain.Graph{
			Nodes: []domain.Node{text("t", "a"), llm("l", "{{ index .Inputs.text 5 }}")},
			Edges: []domain.Edge{wire("t", "l", "text")},
		})
		require.NoError(t, err)

		nr, _ := res.Result("l")
		require.Equal(t, domain.NodeStatusFailed, nr.Status)
		require.Contains(t, nr.ErrorMessage, "template render failed")
		require.Equal(t, 0, f.llm.calls())
	})
}

func TestExecute_UsesLoggerFromContext(t *testing.T) {
	f := newFixture()

	var buf bytes.Buffer
	logger := telemetry.WithExecutionID(slog.New(slog.NewJSONHandler(&buf, nil)), "exec-42")
	ctx := telemetry.WithLogger(context.Background(), logger)

	_, err := f.runner.Execute(ctx, &domain.Graph{Nodes: []domain.Node{text("t", "x")}})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"msg":"run completed"`)
	require.Contains(t, buf.String(), `"execution_id":"exec-42"`)
}
