//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/scout/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime initializes the ONNX Runtime environment once per process. sharedLibraryPath
// may be empty to use the platform default library name.
func InitRuntime(sharedLibraryPath string) error {
	runtimeOnce.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if ort.IsInitialized() {
			return
		}
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	})
	return runtimeErr
}

// NewSessionOptions returns session options with the execution provider for d appended.
// The caller destroys the options after creating its sessions.
func NewSessionOptions(d Device) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	switch d {
	case DeviceCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda provider unavailable: %w", err)
		}
		defer cuda.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda provider unavailable: %w", err)
		}
	case DeviceCoreML:
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("coreml provider unavailable: %w", err)
		}
	}
	return opts, nil
}

// ONNXEmbedder runs SigLIP vision and text towers exported to ONNX. Each tower has
// pre-allocated tensors and its own mutex; Run is never called concurrently on a session.
type ONNXEmbedder struct {
	cfg       ONNXConfig
	device    Device
	tokenizer Tokenizer
	imageCfg  ImageConfig
	cache     *EmbeddingCache
	logger    *zap.Logger

	visionMu sync.Mutex
	vision   *ort.AdvancedSession
	pixels   *ort.Tensor[float32]
	imageOut *ort.Tensor[float32]

	textMu   sync.Mutex
	text     *ort.AdvancedSession
	inputIDs *ort.Tensor[int64]
	textOut  *ort.Tensor[float32]
}

// NewONNXEmbedder loads both towers on the best available device.
func NewONNXEmbedder(cfg ONNXConfig, logger *zap.Logger) (*ONNXEmbedder, error) {
	if err := InitRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}
	tok, err := LoadVocabTokenizer(cfg.VocabPath, SentencePiece)
	if err != nil {
		return nil, err
	}
	e := &ONNXEmbedder{
		cfg:       cfg,
		tokenizer: tok,
		imageCfg:  SigLIPImageConfig(cfg.ImageSize),
		cache:     NewEmbeddingCache(cfg.CacheSize),
		logger:    utils.OrNop(logger),
	}
	if err := e.allocate(); err != nil {
		e.Close()
		return nil, err
	}
	device, err := ProbeDevice(cfg.Device, func(d Device) error {
		err := e.openSessions(d)
		if err != nil {
			e.logger.Debug("device unavailable", zap.String("device", string(d)), zap.Error(err))
		}
		return err
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.device = device
	return e, nil
}

func (e *ONNXEmbedder) allocate() error {
	size := int64(e.imageCfg.Size)
	var err error
	e.pixels, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.inputIDs, err = ort.NewEmptyTensor[int64](ort.NewShape(1, int64(e.cfg.MaxTokens)))
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.textOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	return nil
}

func (e *ONNXEmbedder) openSessions(d Device) error {
	opts, err := NewSessionOptions(d)
	if err != nil {
		return err
	}
	defer opts.Destroy()

	vision, err := ort.NewAdvancedSession(
		e.cfg.VisionModelPath,
		[]string{"pixel_values"},
		[]string{e.cfg.VisionOutputName},
		[]ort.ArbitraryTensor{e.pixels},
		[]ort.ArbitraryTensor{e.imageOut},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to create vision session: %w", err)
	}
	text, err := ort.NewAdvancedSession(
		e.cfg.TextModelPath,
		[]string{"input_ids"},
		[]string{e.cfg.TextOutputName},
		[]ort.ArbitraryTensor{e.inputIDs},
		[]ort.ArbitraryTensor{e.textOut},
		opts,
	)
	if err != nil {
		vision.Destroy()
		return fmt.Errorf("failed to create text session: %w", err)
	}
	e.vision, e.text = vision, text
	return nil
}

// EmbedImage decodes, resizes and normalizes the image, then runs the vision tower.
func (e *ONNXEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	pixels, err := LoadPixels(path, e.imageCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	out := make([]float32, e.cfg.Dimensions)
	err = RunInference(ctx, e.cfg.Timeout, &e.visionMu, func() error {
		copy(e.pixels.GetData(), pixels)
		if err := e.vision.Run(); err != nil {
			return err
		}
		copy(out, e.imageOut.GetData())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vision inference for %s: %w", ErrEmbedding, path, err)
	}
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedText runs the text tower on the query padded to max_length, using the cache when possible.
func (e *ONNXEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbedding)
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	enc := e.tokenizer.Encode(text, e.cfg.MaxTokens)
	out := make([]float32, e.cfg.Dimensions)
	err := RunInference(ctx, e.cfg.Timeout, &e.textMu, func() error {
		copy(e.inputIDs.GetData(), enc.InputIDs)
		if err := e.text.Run(); err != nil {
			return err
		}
		copy(out, e.textOut.GetData())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: text inference: %w", ErrEmbedding, err)
	}
	utils.NormalizeL2(out)
	e.cache.Set(text, out)
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Device returns the device the sessions were created on.
func (e *ONNXEmbedder) Device() Device {
	return e.device
}

// Close destroys the sessions and tensors.
func (e *ONNXEmbedder) Close() error {
	e.visionMu.Lock()
	defer e.visionMu.Unlock()
	e.textMu.Lock()
	defer e.textMu.Unlock()

	var err error
	if e.vision != nil {
		err = e.vision.Destroy()
		e.vision = nil
	}
	if e.text != nil {
		if terr := e.text.Destroy(); err == nil {
			err = terr
		}
		e.text = nil
	}
	for _, t := range []*ort.Tensor[float32]{e.pixels, e.imageOut, e.textOut} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
	}
	e.pixels, e.imageOut, e.inputIDs, e.textOut = nil, nil, nil, nil
	return err
}
