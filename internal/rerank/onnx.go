//go:build cgo
// +build cgo

package rerank

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// CrossEncoder scores (query, text) pairs with a BERT-style cross-encoder exported to ONNX.
// The graph takes input_ids, attention_mask and token_type_ids and emits one relevance logit.
type CrossEncoder struct {
	cfg       ONNXConfig
	tokenizer embedding.Tokenizer

	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	logits        *ort.Tensor[float32]
}

// NewCrossEncoder loads the cross-encoder on the best available device.
func NewCrossEncoder(cfg ONNXConfig, logger *zap.Logger) (*CrossEncoder, error) {
	logger = utils.OrNop(logger)
	if err := embedding.InitRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}
	tok, err := embedding.LoadVocabTokenizer(cfg.VocabPath, embedding.WordPiece)
	if err != nil {
		return nil, err
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "logits"
	}
	c := &CrossEncoder{cfg: cfg, tokenizer: tok}
	shape := ort.NewShape(1, int64(cfg.MaxTokens))
	if c.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if c.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if c.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if c.logits, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	device, err := embedding.ProbeDevice(cfg.Device, func(d embedding.Device) error {
		opts, err := embedding.NewSessionOptions(d)
		if err != nil {
			return err
		}
		defer opts.Destroy()
		c.session, err = ort.NewAdvancedSession(
			cfg.ModelPath,
			[]string{"input_ids", "attention_mask", "token_type_ids"},
			[]string{cfg.OutputName},
			[]ort.ArbitraryTensor{c.inputIDs, c.attentionMask, c.tokenTypeIDs},
			[]ort.ArbitraryTensor{c.logits},
			opts,
		)
		return err
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create cross-encoder session: %w", err)
	}
	logger.Info("cross-encoder ready", zap.String("device", string(device)), zap.String("model", cfg.ModelPath))
	return c, nil
}

// ScorePair implements TextScorer. The score is the raw relevance logit.
func (c *CrossEncoder) ScorePair(ctx context.Context, query, text string) (float64, error) {
	enc := c.tokenizer.EncodePair(query, text, c.cfg.MaxTokens)
	var score float64
	err := embedding.RunInference(ctx, c.cfg.Timeout, &c.mu, func() error {
		copy(c.inputIDs.GetData(), enc.InputIDs)
		copy(c.attentionMask.GetData(), enc.AttentionMask)
		copy(c.tokenTypeIDs.GetData(), enc.TokenTypeIDs)
		if err := c.session.Run(); err != nil {
			return err
		}
		score = float64(c.logits.GetData()[0])
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cross-encoder inference: %w", err)
	}
	return score, nil
}

// Close destroys the session and tensors.
func (c *CrossEncoder) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.session != nil {
		err = c.session.Destroy()
		c.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{c.inputIDs, c.attentionMask, c.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if c.logits != nil {
		_ = c.logits.Destroy()
	}
	c.inputIDs, c.attentionMask, c.tokenTypeIDs, c.logits = nil, nil, nil, nil
	return err
}

// ITMScorer runs a BLIP image-text matching head exported to ONNX. The graph takes
// pixel_values, input_ids and attention_mask and emits two logits (no match, match).
type ITMScorer struct {
	cfg       ONNXConfig
	imageCfg  embedding.ImageConfig
	tokenizer embedding.Tokenizer

	mu            sync.Mutex
	session       *ort.AdvancedSession
	pixels        *ort.Tensor[float32]
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	itm           *ort.Tensor[float32]
}

// NewITMScorer loads the image-text matching model on the best available device.
func NewITMScorer(cfg ONNXConfig, logger *zap.Logger) (*ITMScorer, error) {
	logger = utils.OrNop(logger)
	if err := embedding.InitRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}
	tok, err := embedding.LoadVocabTokenizer(cfg.VocabPath, embedding.WordPiece)
	if err != nil {
		return nil, err
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "itm_score"
	}
	s := &ITMScorer{cfg: cfg, imageCfg: embedding.BLIPImageConfig(cfg.ImageSize), tokenizer: tok}
	size := int64(s.imageCfg.Size)
	if s.pixels, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	shape := ort.NewShape(1, int64(cfg.MaxTokens))
	if s.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if s.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if s.itm, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 2)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create itm_score tensor: %w", err)
	}
	device, err := embedding.ProbeDevice(cfg.Device, func(d embedding.Device) error {
		opts, err := embedding.NewSessionOptions(d)
		if err != nil {
			return err
		}
		defer opts.Destroy()
		s.session, err = ort.NewAdvancedSession(
			cfg.ModelPath,
			[]string{"pixel_values", "input_ids", "attention_mask"},
			[]string{cfg.OutputName},
			[]ort.ArbitraryTensor{s.pixels, s.inputIDs, s.attentionMask},
			[]ort.ArbitraryTensor{s.itm},
			opts,
		)
		return err
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create image-text matching session: %w", err)
	}
	logger.Info("image-text matcher ready", zap.String("device", string(device)), zap.String("model", cfg.ModelPath))
	return s, nil
}

// ScoreImage implements ImageScorer. The score is the softmax probability of the match class.
func (s *ITMScorer) ScoreImage(ctx context.Context, query, path string) (float64, error) {
	pixels, err := embedding.LoadPixels(path, s.imageCfg)
	if err != nil {
		return 0, err
	}
	enc := s.tokenizer.Encode(query, s.cfg.MaxTokens)
	var logits [2]float32
	err = embedding.RunInference(ctx, s.cfg.Timeout, &s.mu, func() error {
		copy(s.pixels.GetData(), pixels)
		copy(s.inputIDs.GetData(), enc.InputIDs)
		copy(s.attentionMask.GetData(), enc.AttentionMask)
		if err := s.session.Run(); err != nil {
			return err
		}
		copy(logits[:], s.itm.GetData())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("image-text matching inference for %s: %w", path, err)
	}
	return utils.Softmax(logits[:])[1], nil
}

// Close destroys the session and tensors.
func (s *ITMScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{s.pixels, s.itm} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[int64]{s.inputIDs, s.attentionMask} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	s.pixels, s.itm, s.inputIDs, s.attentionMask = nil, nil, nil, nil
	return err
}
