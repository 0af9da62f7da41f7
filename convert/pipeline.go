// pipeline.go - Konvertierungs-Pipeline: Laden -> Quantisieren -> Schreiben
//
// Enthaelt:
// - Pipeline: verdrahtet Mapper, Loader und Writer einer Konvertierung
// - quantizeGroup: datenparallele Kernel-Ausfuehrung innerhalb einer Gruppe
// - Convert: Komplettlauf inklusive nativem Combiner
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgellm/llmpack/quant"
	"github.com/edgellm/llmpack/weights"
)

// Pipeline - Eine Konvertierung: streamt Tensor-Gruppen aus dem Checkpoint,
// quantisiert sie und schreibt sie sofort weg (eine Gruppe zur Zeit, damit
// der Speicherbedarf unabhaengig von der Checkpoint-Groesse bleibt)
type Pipeline struct {
	cfg    Config
	loader Loader
	writer *weights.Writer
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := NewMapper(cfg)
	if err != nil {
		return nil, err
	}
	l, err := NewLoader(cfg, m)
	if err != nil {
		return nil, err
	}
	w, err := weights.NewWriter(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	return &Pipeline{cfg: cfg, loader: l, writer: w}, nil
}

// Run - Fuehrt die Gewichts-Stufe aus. Ein Fehler an irgendeinem Tensor
// bricht den gesamten Lauf ab; es gibt keinen Teilerfolg.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	groups := 0

	for group, err := range p.loader.Load() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		vars, err := p.quantizeGroup(group)
		if err != nil {
			return err
		}
		if err := p.writer.WriteVariables(vars, p.cfg.FakeWeights); err != nil {
			return err
		}
		groups++
	}

	slog.Info("weight conversion finished", "groups", groups, "output", p.cfg.OutputDir, "elapsed", time.Since(start))
	return nil
}

// quantizeGroup quantisiert die Aktionen einer Gruppe parallel; die Kernel
// sind zustandslos, nur das Ergebnis-Merging ist sequentiell
func (p *Pipeline) quantizeGroup(group []Action) (map[string]weights.Variable, error) {
	results := make([]map[string]weights.Variable, len(group))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, a := range group {
		g.Go(func() error {
			vars, err := p.apply(a)
			results[i] = vars
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]weights.Variable)
	for _, r := range results {
		maps.Copy(merged, r)
	}
	return merged, nil
}

// apply fuehrt die Quantisierungs-Entscheidung einer Aktion aus und liefert
// die zu schreibenden Eintraege (Werte, Scale, optional Zero-Point)
func (p *Pipeline) apply(a Action) (map[string]weights.Variable, error) {
	out := make(map[string]weights.Variable, 3)

	if !a.quantized() {
		out[a.Target] = weights.Variable{F32: a.Value.Data, Shape: a.Value.Shape}
		return out, nil
	}

	res, err := quant.Quantize(a.Value, a.Axes, quant.Opts{
		Bits:          a.Bits,
		Symmetric:     p.cfg.SymmetricQuant,
		OptimizeBound: p.cfg.MSEQuant,
		PerChannel:    p.cfg.MSEQuant,
	})
	if err != nil {
		return nil, fmt.Errorf("quantize %s: %w", a.SourceName, err)
	}

	slog.Debug("quantized tensor",
		"source", a.SourceName, "target", a.Target,
		"bits", a.Bits, "shape", res.Shape)

	switch {
	case a.Bits == 4 && p.cfg.Backend == BackendGPU:
		// das GPU-Backend erwartet die Uint4-Konvention mit ganzzahligem
		// Zero-Point und int32-Containern
		u, err := quant.UpdateToUint4(res.Q, res.Scale, res.ZeroPoint, a.Slices)
		if err != nil {
			return nil, fmt.Errorf("uint4 conversion of %s: %w", a.SourceName, err)
		}
		out[a.Target] = weights.Variable{U8: u.Q, Shape: res.Shape, Pack: true}
		out[a.Target+"_quantized_scale"] = weights.Variable{F32: u.Scale, Shape: res.ScaleShape}
		out[a.Target+"_quantized_zp"] = weights.Variable{I32: u.ZeroPoint, Shape: []int{len(u.ZeroPoint)}}

	case a.Bits == 4:
		out[a.Target] = weights.Variable{I8: res.Q, Shape: res.Shape, Pack: true}
		out[a.Target+"_quantized_scale"] = weights.Variable{F32: res.Scale, Shape: res.ScaleShape}
		if res.ZeroPoint != nil {
			out[a.Target+"_quantized_zp"] = weights.Variable{F32: res.ZeroPoint, Shape: res.ScaleShape}
		}

	default:
		out[a.Target] = weights.Variable{I8: res.Q, Shape: res.Shape}
		out[a.Target+"_quantized_scale"] = weights.Variable{F32: res.Scale, Shape: res.ScaleShape}
		if res.ZeroPoint != nil {
			out[a.Target+"_quantized_zp"] = weights.Variable{F32: res.ZeroPoint, Shape: res.ScaleShape}
		}
	}

	return out, nil
}

// Convert - Komplettlauf: Gewichts-Stufe plus nativer Combiner.
// comb darf nil sein, dann endet der Lauf nach der Gewichts-Stufe.
func Convert(ctx context.Context, cfg Config, comb Combiner) error {
	p, err := NewPipeline(cfg)
	if err != nil {
		return err
	}
	if err := p.Run(ctx); err != nil {
		return err
	}

	// der LoRA-Checkpoint durchlaeuft dieselbe Pipeline; Adapter-Gewichte
	// werden nie quantisiert und landen in einem eigenen Unterverzeichnis
	loraDir := ""
	if cfg.LoRACheckpoint != "" {
		loraDir = filepath.Join(cfg.OutputDir, "lora")
		loraCfg := cfg
		loraCfg.Input = cfg.LoRACheckpoint
		loraCfg.OutputDir = loraDir

		lp, err := NewPipeline(loraCfg)
		if err != nil {
			return err
		}
		if err := lp.Run(ctx); err != nil {
			return err
		}
	}

	if comb == nil {
		return nil
	}
	return comb.Combine(ctx, CombineParams{
		Backend:          cfg.Backend,
		WeightDir:        cfg.OutputDir,
		VocabFile:        cfg.VocabFile,
		OutputFile:       filepath.Join(cfg.OutputDir, "model.tflite"),
		LoRARank:         cfg.LoRARank,
		LoRAWeightDir:    loraDir,
		ImageEncoderFile: cfg.ImageEncoderFile,
		ImageAdapterFile: cfg.ImageAdapterFile,
	})
}
