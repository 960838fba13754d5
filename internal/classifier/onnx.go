package classifier

import (
	"context"
	"fmt"
	"image"
	"sync"

	"go-ultrasound-classifier/internal/logger"
	"go-ultrasound-classifier/pkg/models"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXClassifier runs the exported model through onnxruntime. The session
// reuses one input and one output tensor, so runs are serialised.
type ONNXClassifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     *Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXClassifier loads the model. libraryPath may be empty to use the
// onnxruntime default lookup.
func NewONNXClassifier(modelPath, metadataPath, libraryPath string) (*ONNXClassifier, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"model":       modelPath,
		"input_shape": metadata.InputShape,
		"layout":      metadata.Layout,
		"classes":     metadata.Classes,
	}).Info("Model loaded")

	return &ONNXClassifier{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Metadata returns the loaded model description.
func (c *ONNXClassifier) Metadata() Metadata {
	return *c.metadata
}

func (c *ONNXClassifier) Classify(ctx context.Context, img image.Image) (models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return models.Prediction{}, err
	}

	input, err := Preprocess(img, c.metadata.ImageSize, c.metadata.Layout)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("preprocess: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.inputTensor.GetData()
	if len(dst) != len(input) {
		return models.Prediction{}, fmt.Errorf("input tensor holds %d values, preprocessed %d", len(dst), len(input))
	}
	copy(dst, input)

	if err := c.session.Run(); err != nil {
		return models.Prediction{}, fmt.Errorf("inference failed: %w", err)
	}

	probs := make([]float32, len(c.outputTensor.GetData()))
	copy(probs, c.outputTensor.GetData())
	return PredictionFromProbabilities(probs)
}

func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	return ort.DestroyEnvironment()
}
