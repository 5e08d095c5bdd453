package encoder

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// InputSize is the square input resolution of the image encoders, matching
// the canonical map resolution downstream.
const InputSize = 224

// ImageNet channel statistics applied during preprocessing.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// PrepareInput fills dst with the CHW float32 rendition of img: resized to
// InputSize x InputSize with Lanczos3, scaled to [0,1] and standardized with
// the ImageNet mean and std per channel.
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination slice to populate, at least 3*InputSize*InputSize
//     floats.
//
// Returns:
//   - error: An error if the input preparation fails.
func PrepareInput(img image.Image, dst []float32) error {
	channelSize := InputSize * InputSize
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination only holds %d floats, needs %d "+
			"(make sure it's the right shape)", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	img = resize.Resize(InputSize, InputSize, img, resize.Lanczos3)

	i := 0
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = (float32(r>>8)/255.0 - imagenetMean[0]) / imagenetStd[0]
			green[i] = (float32(g>>8)/255.0 - imagenetMean[1]) / imagenetStd[1]
			blue[i] = (float32(b>>8)/255.0 - imagenetMean[2]) / imagenetStd[2]
			i++
		}
	}
	return nil
}
