package runner

import (
	"context"
	"sync"

	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/telemetry"
)

type fakeInferencer struct {
	mu       sync.Mutex
	requests []InferenceRequest
	err      error
}

func (f *fakeInferencer) Infer(_ context.Context, req InferenceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return "echo: " + req.UserMessage, nil
}

func (f *fakeInferencer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeCropper struct {
	requests []CropRequest
	err      error
}

func (f *fakeCropper) Crop(_ context.Context, req CropRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return req.ImageURL + "#cropped", nil
}

type fakeFrames struct {
	requests []FrameRequest
	duration float64
	warning  string
	err      error
}

func (f *fakeFrames) ExtractFrame(_ context.Context, req FrameRequest) (*FrameResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	actual := req.TimestampSeconds
	if f.duration > 0 && actual > f.duration {
		actual = f.duration
	}
	return &FrameResult{
		FrameURL:        req.VideoURL + "#frame",
		ActualTimestamp: actual,
		VideoDuration:   f.duration,
		Warning:         f.warning,
	}, nil
}

type statusEvent struct {
	NodeID string
	Status domain.NodeStatus
}

type recordingObserver struct {
	mu     sync.Mutex
	events []statusEvent
}

func (o *recordingObserver) OnNodeStatus(nodeID string, status domain.NodeStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, statusEvent{nodeID, status})
}

func (o *recordingObserver) forNode(nodeID string) []domain.NodeStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.NodeStatus
	for _, e := range o.events {
		if e.NodeID == nodeID {
			out = append(out, e.Status)
		}
	}
	return out
}

type fixture struct {
	runner   *Runner
	llm      *fakeInferencer
	crop     *fakeCropper
	frames   *fakeFrames
	observer *recordingObserver
}

func newFixture() *fixture {
	f := &fixture{
		llm:      &fakeInferencer{},
		crop:     &fakeCropper{},
		frames:   &fakeFrames{duration: 10},
		observer: &recordingObserver{},
	}
	f.runner = New(Config{
		Inferencer:     f.llm,
		Cropper:        f.crop,
		FrameExtractor: f.frames,
		Observer:       f.observer,
		Logger:         telemetry.Discard(),
	})
	return f
}

func text(id, value string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindText, Label: "Text", Config: domain.TextConfig{Value: value}}
}

func llm(id, prompt string) domain.Node {
	cfg := domain.DefaultConfig(domain.KindLLM).(domain.LLMConfig)
	cfg.PromptTemplate = prompt
	return domain.Node{ID: id, Kind: domain.KindLLM, Label: "LLM", Config: cfg}
}

func image(id, url string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindImageUpload, Config: domain.ImageUploadConfig{ImageURL: url}}
}

func video(id, url string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindVideoUpload, Config: domain.VideoUploadConfig{VideoURL: url}}
}

func crop(id string, cfg domain.CropConfig) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindCropImage, Config: cfg}
}

func frame(id string, ts float64) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindExtractFrame, Config: domain.FrameConfig{TimestampSeconds: ts}}
}

func wire(src, dst, port string) domain.Edge {
	return domain.Edge{Source: src, Target: dst, TargetPort: port}
}

func resultIDs(res *domain.RunResult) []string {
	ids := make([]string, len(res.NodeResults))
	for i, nr := range res.NodeResults {
		ids[i] = nr.NodeID
	}
	return ids
}
