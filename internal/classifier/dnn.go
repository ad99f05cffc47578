package classifier

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// DNN is a Classifier backed by the OpenCV dnn module. Any network format
// OpenCV reads (ONNX, TensorFlow, Caffe, ...) can be used.
type DNN struct {
	net    gocv.Net
	shape  []int
	loaded bool
}

var _ Classifier = (*DNN)(nil)

// NewDNN loads the network at path. inputShape is the blob shape the
// network expects, e.g. {1, 60, 42, 1}; when empty the tensor is fed as a
// single row.
func NewDNN(path string, inputShape ...int) (*DNN, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelNotLoaded, err)
	}

	net := gocv.ReadNet(path, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: cannot read %s", ErrModelNotLoaded, path)
	}

	return &DNN{
		net:    net,
		shape:  append([]int(nil), inputShape...),
		loaded: true,
	}, nil
}

// Classify implements Classifier.
func (d *DNN) Classify(tensor []float32) ([]float32, error) {
	if !d.loaded {
		return nil, ErrModelNotLoaded
	}

	blob, err := d.blob(tensor)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("classifier produced no output")
	}

	probs, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read classifier output: %w", err)
	}
	return append([]float32(nil), probs...), nil
}

func (d *DNN) blob(tensor []float32) (gocv.Mat, error) {
	buf := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	shape := d.shape
	if len(shape) == 0 {
		shape = []int{1, len(tensor)}
	}
	if n := product(shape); n != len(tensor) {
		return gocv.Mat{}, fmt.Errorf("tensor has %d values, network input %v needs %d", len(tensor), shape, n)
	}

	blob, err := gocv.NewMatWithSizesFromBytes(shape, gocv.MatTypeCV32F, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("build input blob: %w", err)
	}
	return blob, nil
}

// Close implements Classifier.
func (d *DNN) Close() error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
