package encoder

import (
	"image"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

// session wraps one onnxruntime model with fixed-shape input and output
// tensors.
type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newSession(modelPath, inputName, outputName string, inShape, outShape []int64) (*session, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inShape...))
	if err != nil {
		return nil, errors.Wrapf(err, "input tensor for %q", modelPath)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrapf(err, "output tensor for %q", modelPath)
	}
	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "session for %q", modelPath)
	}
	klog.V(1).Infof("loaded encoder model %s", modelPath)
	return &session{session: sess, input: input, output: output}, nil
}

// Close releases the resources associated with the session.
func (s *session) Close() {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// ImageEncoder runs a pretrained image backbone producing a (C, H, W)
// feature map per image.
type ImageEncoder struct {
	sess     *session
	channels int
	height   int
	width    int
}

// NewImageEncoder loads an image encoder model. The output shape
// (channels, height, width) must match the model's declared output.
func NewImageEncoder(modelPath, inputName, outputName string, channels, height, width int) (*ImageEncoder, error) {
	sess, err := newSession(modelPath, inputName, outputName,
		[]int64{1, 3, InputSize, InputSize},
		[]int64{1, int64(channels), int64(height), int64(width)})
	if err != nil {
		return nil, err
	}
	return &ImageEncoder{sess: sess, channels: channels, height: height, width: width}, nil
}

// Encode preprocesses img and runs the backbone.
//
// Returns:
//   - *tensor.Dense: the (C, H, W) feature map.
//   - error: preprocessing or inference failure.
func (e *ImageEncoder) Encode(img image.Image) (*tensor.Dense, error) {
	if err := PrepareInput(img, e.sess.input.GetData()); err != nil {
		return nil, err
	}
	if err := e.sess.session.Run(); err != nil {
		return nil, errors.Wrap(err, "image encoder inference")
	}
	out := e.sess.output.GetData()
	backing := make([]float32, len(out))
	copy(backing, out)
	return tensor.New(tensor.WithShape(e.channels, e.height, e.width),
		tensor.WithBacking(backing)), nil
}

// Close releases the encoder's session.
func (e *ImageEncoder) Close() { e.sess.Close() }

// CaptionEncoder runs a pretrained caption branch mapping (T, C) token
// embeddings to (T, C) contextual features for a fixed token count.
type CaptionEncoder struct {
	sess   *session
	tokens int
	embed  int
}

// NewCaptionEncoder loads a caption encoder model for captions of exactly
// tokens tokens with embed-dimensional embeddings. Length-bucketed batches
// keep this fixed shape honest without padding.
func NewCaptionEncoder(modelPath, inputName, outputName string, tokens, embed int) (*CaptionEncoder, error) {
	shape := []int64{1, int64(tokens), int64(embed)}
	sess, err := newSession(modelPath, inputName, outputName, shape, shape)
	if err != nil {
		return nil, err
	}
	return &CaptionEncoder{sess: sess, tokens: tokens, embed: embed}, nil
}

// Encode runs the caption branch over a (T, C) embedding tensor.
func (e *CaptionEncoder) Encode(embeddings *tensor.Dense) (*tensor.Dense, error) {
	shape := embeddings.Shape()
	if len(shape) != 2 || shape[0] != e.tokens || shape[1] != e.embed {
		return nil, errors.Errorf("caption embeddings must be (%d, %d), got %v",
			e.tokens, e.embed, shape)
	}
	data, ok := embeddings.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("float32 embeddings required, got %v", embeddings.Dtype())
	}
	copy(e.sess.input.GetData(), data)
	if err := e.sess.session.Run(); err != nil {
		return nil, errors.Wrap(err, "caption encoder inference")
	}
	out := e.sess.output.GetData()
	backing := make([]float32, len(out))
	copy(backing, out)
	return tensor.New(tensor.WithShape(e.tokens, e.embed), tensor.WithBacking(backing)), nil
}

// Close releases the encoder's session.
func (e *CaptionEncoder) Close() { e.sess.Close() }
