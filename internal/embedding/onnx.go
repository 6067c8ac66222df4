//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// modelIO owns the four tensors a session runs against. They are allocated
// once; Embed rewrites the input buffers in place, so there is no per-call
// tensor churn.
type modelIO struct {
	ids    *ort.Tensor[int64]
	mask   *ort.Tensor[int64]
	types  *ort.Tensor[int64]
	output *ort.Tensor[float32]
}

func newModelIO(maxTokens, dimensions int) (*modelIO, error) {
	m := &modelIO{}
	seq := ort.NewShape(1, int64(maxTokens))
	var err error
	if m.ids, err = ort.NewTensor(seq, make([]int64, maxTokens)); err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	if m.mask, err = ort.NewTensor(seq, make([]int64, maxTokens)); err != nil {
		m.destroy()
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	if m.types, err = ort.NewTensor(seq, make([]int64, maxTokens)); err != nil {
		m.destroy()
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	if m.output, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions)); err != nil {
		m.destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	return m, nil
}

func (m *modelIO) destroy() {
	if m.ids != nil {
		_ = m.ids.Destroy()
		m.ids = nil
	}
	if m.mask != nil {
		_ = m.mask.Destroy()
		m.mask = nil
	}
	if m.types != nil {
		_ = m.types.Destroy()
		m.types = nil
	}
	if m.output != nil {
		_ = m.output.Destroy()
		m.output = nil
	}
}

// ONNXEmbedder runs a sentence-transformer ONNX model. It requires CGO and
// the onnxruntime shared library. The session binds to fixed tensors, so the
// mutex serializes Embed calls.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	tensors    *modelIO
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
	mu         sync.Mutex
}

// NewONNXEmbedder loads the model at modelPath. The runtime environment is
// initialized on first use and shared across embedders.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if maxTokens < 2 {
		maxTokens = defaultSeqLen
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	tensors, err := newModelIO(maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{tensors.ids, tensors.mask, tensors.types},
		[]ort.ArbitraryTensor{tensors.output},
		nil,
	)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  &SimpleTokenizer{},
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

// Embed returns the L2-normalized embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.tensors.ids.GetData(), ids)
	copy(e.tensors.mask.GetData(), mask)
	copy(e.tensors.types.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, e.dimensions)
	copy(out, e.tensors.output.GetData()[:e.dimensions])
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch embeds texts sequentially; the session holds one input slot.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.tensors != nil {
		e.tensors.destroy()
		e.tensors = nil
	}
	return err
}
