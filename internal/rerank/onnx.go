package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates a local NLI model (an MNLI-finetuned sequence
// classifier exported to ONNX) and describes its input layout.
type ONNXConfig struct {
	Library   string `mapstructure:"library"`
	Model     string `mapstructure:"model"`
	Tokenizer string `mapstructure:"tokenizer"`
	MaxSeqLen int    `mapstructure:"max_seq_len"`
	// Classes is the width of the logits output; EntailmentIndex selects the
	// entailment logit within it.
	Classes         int `mapstructure:"classes"`
	EntailmentIndex int `mapstructure:"entailment_index"`
	BOSID           int `mapstructure:"bos_id"`
	EOSID           int `mapstructure:"eos_id"`
	// Hypothesis is a format string with one %s for the label.
	Hypothesis string `mapstructure:"hypothesis"`
}

// DefaultONNXConfig matches a BART/RoBERTa MNLI export.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		MaxSeqLen:       512,
		Classes:         3,
		EntailmentIndex: 2,
		BOSID:           0,
		EOSID:           2,
		Hypothesis:      "This example is %s.",
	}
}

// Check reports missing files and inconsistent settings.
func (c ONNXConfig) Check() error {
	var errs []error
	for _, f := range []struct{ name, path string }{
		{"onnxruntime library", c.Library},
		{"model", c.Model},
		{"tokenizer", c.Tokenizer},
	} {
		if f.path == "" {
			errs = append(errs, fmt.Errorf("%s path not set", f.name))
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	if c.Classes < 1 || c.EntailmentIndex < 0 || c.EntailmentIndex >= c.Classes {
		errs = append(errs, fmt.Errorf("entailment index %d outside %d classes", c.EntailmentIndex, c.Classes))
	}
	if c.MaxSeqLen < 8 {
		errs = append(errs, fmt.Errorf("max sequence length %d too small", c.MaxSeqLen))
	}
	if strings.Count(c.Hypothesis, "%s") != 1 {
		errs = append(errs, fmt.Errorf("hypothesis template %q needs exactly one %%s", c.Hypothesis))
	}
	return errors.Join(errs...)
}

// ONNXOracle runs zero-shot classification locally: every label is turned
// into an entailment hypothesis, and the entailment logits of all labels are
// normalized with a softmax.
type ONNXOracle struct {
	cfg     ONNXConfig
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	tk      *tokenizer.Tokenizer
}

// NewONNXOracle loads the runtime, tokenizer and model described by cfg.
func NewONNXOracle(cfg ONNXConfig) (*ONNXOracle, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	tk, err := pretrained.FromFile(cfg.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	ort.SetSharedLibraryPath(cfg.Library)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.Model,
		[]string{"input_ids", "attention_mask"}, []string{"logits"}, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &ONNXOracle{cfg: cfg, session: session, tk: tk}, nil
}

// Close releases the session.
func (o *ONNXOracle) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}

func (o *ONNXOracle) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	logits := make([]float64, len(labels))
	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := pairSequence(o.encode, o.cfg, text, fmt.Sprintf(o.cfg.Hypothesis, label))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOracle, err)
		}
		out, err := o.infer(ids)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOracle, err)
		}
		logits[i] = float64(out[o.cfg.EntailmentIndex])
	}

	probs := softmax(logits)
	scores := make(map[string]float64, len(labels))
	for i, l := range labels {
		scores[l] = probs[i]
	}
	return scores, nil
}

func (o *ONNXOracle) encode(s string) ([]int, error) {
	enc, err := o.tk.EncodeSingle(s, false)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

func (o *ONNXOracle) infer(ids []int64) ([]float32, error) {
	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	shape := ort.NewShape(1, int64(len(ids)))
	input, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()
	attention, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer attention.Destroy()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(o.cfg.Classes)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, errors.New("oracle closed")
	}
	if err := o.session.Run([]ort.Value{input, attention}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	out := make([]float32, o.cfg.Classes)
	copy(out, output.GetData())
	return out, nil
}

// pairSequence lays out "<s> premise </s></s> hypothesis </s>", cutting the
// premise when the pair does not fit MaxSeqLen.
func pairSequence(encode func(string) ([]int, error), cfg ONNXConfig, premise, hypothesis string) ([]int64, error) {
	p, err := encode(premise)
	if err != nil {
		return nil, fmt.Errorf("tokenize premise: %w", err)
	}
	h, err := encode(hypothesis)
	if err != nil {
		return nil, fmt.Errorf("tokenize hypothesis: %w", err)
	}
	budget := cfg.MaxSeqLen - len(h) - 4
	if budget < 1 {
		return nil, fmt.Errorf("hypothesis of %d tokens does not fit %d", len(h), cfg.MaxSeqLen)
	}
	if len(p) > budget {
		p = p[:budget]
	}

	ids := make([]int64, 0, len(p)+len(h)+4)
	ids = append(ids, int64(cfg.BOSID))
	for _, id := range p {
		ids = append(ids, int64(id))
	}
	ids = append(ids, int64(cfg.EOSID), int64(cfg.EOSID))
	for _, id := range h {
		ids = append(ids, int64(id))
	}
	ids = append(ids, int64(cfg.EOSID))
	return ids, nil
}

func softmax(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	maxV := math.Inf(-1)
	for _, x := range xs {
		maxV = math.Max(maxV, x)
	}
	out := make([]float64, len(xs))
	sum := 0.0
	for i, x := range xs {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
