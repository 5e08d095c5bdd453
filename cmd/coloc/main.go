// Command coloc runs a localization evaluation pass: it encodes images and
// captions, generates matchmap grids, and reports the dataset hit rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"k8s.io/klog/v2"

	"github.com/groundvision/go-coloc/alignment"
	"github.com/groundvision/go-coloc/dataset"
	"github.com/groundvision/go-coloc/encoder"
	"github.com/groundvision/go-coloc/eval"
	"github.com/groundvision/go-coloc/localization"
	"github.com/groundvision/go-coloc/matchmap"
	"github.com/groundvision/go-coloc/render"
	"github.com/groundvision/go-coloc/sampler"
)

// options holds the CLI configuration.
type options struct {
	annotationsPath  string
	vocabPath        string
	imageDir         string
	imageModelPath   string
	captionModelPath string
	ortLibPath       string
	mode             string
	rule             string
	thresh           float64
	lastN            int
	padLimit         int
	channels         int
	featSize         int
	renderDir        string
	seed             int64
}

func main() {
	var opts options
	flag.StringVar(&opts.annotationsPath, "annotations", "", "Path to the annotation JSON document")
	flag.StringVar(&opts.vocabPath, "vocab", "", "Path to the GloVe vocabulary JSON file")
	flag.StringVar(&opts.imageDir, "images", "", "Directory of images named by annotation identifier")
	flag.StringVar(&opts.imageModelPath, "image-model", "image_encoder.onnx", "Path to the image encoder ONNX model")
	flag.StringVar(&opts.captionModelPath, "caption-model", "caption_encoder.onnx", "Path to the caption encoder ONNX model")
	flag.StringVar(&opts.ortLibPath, "ort-lib", "", "Path to the onnxruntime shared library (default: per-platform)")
	flag.StringVar(&opts.mode, "mode", string(alignment.ModeMatchmap), "Alignment mode: matchmap or phrase")
	flag.StringVar(&opts.rule, "rule", string(localization.RuleCentroid), "Overlap rule: centroid or iou")
	flag.Float64Var(&opts.thresh, "thresh", eval.DefaultThresh, "Relative binarization threshold")
	flag.IntVar(&opts.lastN, "last", 0, "Number of examples to evaluate (0 = all)")
	flag.IntVar(&opts.padLimit, "pad-limit", 20, "Caption pad limit in tokens, excluding sentinels")
	flag.IntVar(&opts.channels, "channels", 512, "Image encoder output channels (embedding dim)")
	flag.IntVar(&opts.featSize, "feat-size", 14, "Image encoder output spatial resolution")
	flag.StringVar(&opts.renderDir, "render", "", "Directory for overlay PNGs (empty = no rendering)")
	flag.Int64Var(&opts.seed, "seed", 1, "Sampler seed for the bucket report")
	klog.InitFlags(nil)
	flag.Parse()

	if opts.annotationsPath == "" || opts.vocabPath == "" || opts.imageDir == "" {
		fmt.Fprintln(os.Stderr, "usage: coloc -annotations data.json -vocab vocab_glove.json -images dir [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(&opts); err != nil {
		klog.Exitf("coloc: %v", err)
	}
}

func run(opts *options) error {
	anns, err := dataset.LoadAnnotations(opts.annotationsPath)
	if err != nil {
		return err
	}
	vocab, err := dataset.LoadVocabulary(opts.vocabPath)
	if err != nil {
		return err
	}
	images, err := dataset.LoadImageDir(opts.imageDir)
	if err != nil {
		return err
	}
	klog.Infof("loaded %d annotations, %d-d vocabulary, %d images",
		anns.Len(), vocab.Dim(), len(images))

	if err := encoder.Init(opts.ortLibPath); err != nil {
		return err
	}
	defer encoder.Destroy()

	imgEnc, err := encoder.NewImageEncoder(opts.imageModelPath, "image", "features",
		opts.channels, opts.featSize, opts.featSize)
	if err != nil {
		return err
	}
	defer imgEnc.Close()

	capEnc, err := encoder.NewCaptionEncoder(opts.captionModelPath, "embeddings", "features",
		opts.padLimit+2, vocab.Dim())
	if err != nil {
		return err
	}
	defer capEnc.Close()

	ds, err := buildDataset(images, anns, vocab, imgEnc, capEnc, opts.padLimit)
	if err != nil {
		return err
	}

	index, err := sampler.BuildIndex(ds)
	if err != nil {
		return err
	}
	klog.V(1).Infof("length buckets: %v", index.Lengths())
	if batch, err := sampler.New(index, opts.seed).SampleBatch(8); err == nil {
		klog.V(1).Infof("sample batch: %v", batch)
	}

	runner := eval.NewRunner(matchmap.NewEngine(nil), alignment.NewProcessor(), ds, anns, eval.Config{
		Mode:   alignment.Mode(opts.mode),
		Thresh: float32(opts.thresh),
		Rule:   localization.Rule(opts.rule),
	})
	lastN := opts.lastN
	if lastN == 0 {
		lastN = ds.Len()
	}
	result, err := runner.Run(context.Background(), lastN)
	if err != nil {
		return err
	}
	fmt.Printf("evaluated %d examples, localization score %.4f\n", len(result.Scores), result.Mean)

	if opts.renderDir != "" {
		return renderOverlays(ds, images, anns, opts)
	}
	return nil
}

// buildDataset encodes every annotated image/caption pair into an in-memory
// dataset. Images without an annotation entry are skipped up front so the
// evaluation pass only sees scoreable identifiers.
func buildDataset(images []dataset.ImageFile, anns *dataset.AnnotationStore,
	vocab *dataset.Vocabulary, imgEnc *encoder.ImageEncoder, capEnc *encoder.CaptionEncoder,
	padLimit int) (dataset.SliceDataset, error) {
	var ds dataset.SliceDataset
	for _, file := range images {
		ann, err := anns.Lookup(file.ID)
		if err != nil {
			klog.V(2).Infof("skipping %s: %v", file.ID, err)
			continue
		}

		img, err := decodeImage(file.Path)
		if err != nil {
			return nil, err
		}
		// Boxes arrive in image pixels; the scorer sees maps at the
		// canonical resolution.
		bounds := img.Bounds()
		ann.ScaleBoxes(
			float32(alignment.DefaultTargetSize)/float32(bounds.Dx()),
			float32(alignment.DefaultTargetSize)/float32(bounds.Dy()),
		)

		imageFeatures, err := imgEnc.Encode(img)
		if err != nil {
			return nil, err
		}

		tokens := dataset.Sentinels(ann.Tokens, padLimit)
		embedded, err := vocab.Embed(tokens)
		if err != nil {
			return nil, err
		}
		captionFeatures, err := capEnc.Encode(embedded)
		if err != nil {
			return nil, err
		}

		ds = append(ds, dataset.Example{
			ImageFeatures:   imageFeatures,
			CaptionFeatures: captionFeatures,
			Tokens:          tokens,
			ID:              file.ID,
		})
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("no image in %d files had an annotation entry", len(images))
	}
	return ds, nil
}

// renderOverlays writes heat overlays for every example using the same
// clip/resize path the scorer sees.
func renderOverlays(ds dataset.SliceDataset, images []dataset.ImageFile,
	anns *dataset.AnnotationStore, opts *options) error {
	if err := os.MkdirAll(opts.renderDir, 0o755); err != nil {
		return err
	}
	byID := make(map[string]string, len(images))
	for _, file := range images {
		byID[file.ID] = file.Path
	}

	mode := alignment.Mode(opts.mode)
	engine := matchmap.NewEngine(nil)
	proc := alignment.NewProcessor()
	renderer := &render.FileRenderer{Dir: opts.renderDir}

	for i := range ds {
		ex := &ds[i]
		grid, err := engine.Compute(ex.ImageFeatures, ex.CaptionFeatures)
		if err != nil {
			return err
		}
		ann, err := anns.Lookup(ex.ID)
		if err != nil {
			return err
		}
		var groups [][]int
		if mode == alignment.ModePhrase {
			groups = ann.PhraseGroups
		}
		clipped, err := proc.Process(ex.Tokens, grid, mode, groups)
		if err != nil {
			return err
		}
		clipped, err = proc.ResizeClipped(clipped, 0)
		if err != nil {
			return err
		}

		base, err := decodeImage(byID[ex.ID])
		if err != nil {
			return err
		}
		frame := &render.Frame{
			ID:       ex.ID,
			Maps:     clipped.Maps,
			Captions: clipped.Tokens,
			Base:     base,
			Thresh:   float32(opts.thresh),
		}
		if err := renderer.Render(frame); err != nil {
			return err
		}
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	return imaging.Open(path)
}
